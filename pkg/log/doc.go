/*
Package log provides structured logging for the captain using zerolog.

It wraps zerolog with a global logger, a small Config (level, JSON or
console output, destination writer), and helpers that attach the fields
used throughout the scheduler:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	logger := log.WithComponent("captain")
	logger.Info().Int64("chore_id", id).Str("sailor", name).Msg("chore assigned")

Component names in use: store, crew, chores, users, captain, api,
sailor-client, archive.
*/
package log
