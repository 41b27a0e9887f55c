// Package service contains the administrative use cases that sit between the
// HTTP layer and the stores: managing the pool of provider credentials and
// triggering refresh passes on demand.
//
// Generation requests have their own state machine in internal/generation;
// this package only covers the operator side.
//
// Key components:
//
// 1. CredentialService:
//   - Adds, lists, toggles and removes provider credentials
//   - Wraps multi-step changes in a transaction when a database is available
//   - Invalidates cached balances so the key pool sees changes right away
//
// 2. Error Handling:
//   - Store sentinels are translated to service sentinels (ErrCredentialNotFound,
//     ErrCredentialExists) so the API layer never imports the store
package service
