// Package httputil provides shared HTTP response helpers so every
// handler returns the same JSON envelope and error shape.
package httputil
