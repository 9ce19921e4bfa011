// Package duration parses and formats the DD-hh:mm:ss duration strings
// used for sailor max_time and user time_limit fields.
package duration
