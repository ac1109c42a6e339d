// Package demoapps registers the bundled applications.
package demoapps
