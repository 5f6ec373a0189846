// Package fetch implements a dlqueue.Performer that downloads a target URL
// over HTTP into a local directory, reporting progress as bytes arrive.
package fetch
