// Package batchmdw is responsible for the handler used to serve multipart batch requests.

// The primary export is CreateBatchProcessingHandler which parses a multipart/mixed batch,
// executes each request packaged in it one at a time and in document order, and streams
// the multipart/mixed response as every part completes.

// Parts may be grouped into nested multipart regions. Every region of the response is framed
// by a freshly generated boundary that collides with no boundary of the request and no other
// boundary of the response.

// A part tagged with a content-id whose request succeeds records the URL of the resource it
// addressed. Later parts may refer to that resource with `$<content-id>` as the first segment
// of their target or at the start of a JSON string in their body.

// Failures recognized by the protocol are written as error responses in place of the part that
// caused them. Any other failure stops the batch, the open regions are still closed so what was
// written remains parseable.
package batchmdw
