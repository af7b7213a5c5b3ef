// Package models defines the core domain models for Splitledger.
//
// # Persisted Models
//
//   - Expense: a shared expense with payers, beneficiaries, and a split mode
//   - RecurringLink: the forward chain node driving recurring-expense materialization
//   - Group: a named set of participants with a shared expense history
//   - User: a registered account used by the API layer
//
// Participants are identified by opaque id strings scoped to their group.
// All monetary amounts are integers in minor currency units (cents); the
// engine never does float arithmetic on money.
//
// # Derived Values
//
// Balances and suggested reimbursements are recomputed from the expense
// history on every query by the ledger package. They are never persisted or
// cached, so they always reflect the latest history. Recorded payments
// between members are stored as ordinary expenses with IsReimbursement set.
//
// # Design Principles
//
//  1. Amounts are minor-unit integers end to end
//  2. Split modes and recurrence rules are typed enums, so weight and
//     schedule interpretation is explicit rather than conventional
//  3. Avoid circular references: use ID strings instead of pointers for relationships
package models
