// Package acquire implements the tiered acquisition engine: a direct fetch, an
// escalation to browser rendering or an external crawler when the content looks
// blocked, and the lexical feature scan that turns the winning content into
// metadata flags.
package acquire
