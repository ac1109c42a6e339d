// Package ltest contains small helpers shared across lanterm tests.
package ltest
