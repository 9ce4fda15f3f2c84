// Package logx is cronjure's structured logging layer over zerolog.
//
// Libraries accept a Logger by value; its zero value discards output, so no
// caller is forced to configure logging. The daemon builds a Service from
// config: JSON lines to a file, readable lines on the console, and live
// level or sink changes through Apply on config reload.
package logx
