// Package api handles incoming HTTP requests for generations and credential
// administration. It validates requests, calls the generation and credential
// services, and maps their errors to HTTP status codes and safe messages.
package api
