// Package logx configures impactwatch's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional operator sink (min-level + rate limiting) that forwards
//     warnings to a chat channel such as Telegram
package logx
