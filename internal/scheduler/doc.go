// Package scheduler runs named periodic jobs (daily stats reset, heartbeat,
// snapshot persistence) on robfig/cron in a configured location.
package scheduler
