// Package archive keeps the historical record of terminal chores in a
// bbolt database beside the JSON documents. The control loop moves chores
// here after their retention window in chores.json expires; the API and
// the captain-archive tool read them back.
package archive
