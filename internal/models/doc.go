// Package models defines the core domain models for Settle.
//
// # Models
//
//   - Group: a shared expense with a fixed total, a fixed number of splitters and a
//     destination wallet that collects the funds
//   - Payment: one member's obligation toward a group, addressed by a shareable id
//   - ChainInfo: the network and token a group settles in
//
// # Persisted Shape
//
// Groups and payments are persisted as two JSON objects keyed by id. A payment
// appears twice: once in the flat payment map and once embedded in its group's
// Payments slice. The flat map is authoritative; the ledger package refreshes the
// embedded copies from it whenever state is loaded or saved.
//
// # Amounts
//
// All amounts are decimal strings (e.g. "50.00") so they survive JSON round trips
// without float drift. Arithmetic lives in the calculator package.
package models
