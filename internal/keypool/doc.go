// Package keypool manages the pool of upstream provider credentials.
//
// It has three parts:
//   - CreditCache: an in-process map from secret to last observed balance,
//     fresh for a fixed window, so repeated selections do not re-query the
//     provider.
//   - Manager: picks the credential for a new submission, round-robin over
//     every credential that is active and has credits left.
//   - Refresher: a background pass that re-checks every stored credential on
//     an interval and keeps the stored balances current.
//
// Credit balances are allocation hints. The provider debits credits itself,
// so nothing here is an accounting ledger.
package keypool
