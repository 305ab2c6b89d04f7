// Package mail integrates the per-user Gmail account: the OAuth
// authorization flow, reading historical threads for a correspondent, and
// sending templated bulk mail. Tokens live in the web session only; nothing
// is persisted across restarts.
package mail
