// Package tokens counts tokens in conversation content and aggregates the
// running usage totals for one agent loop run. Counting is a pure function
// over message data; the accountant is mutated only by the loop after each
// provider response.
package tokens
