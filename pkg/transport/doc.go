// Package transport moves a universal.Payload from the server pass to the
// client pass.
//
// Two mechanisms are provided:
//   - Embed and ReadMarkup put the payload inside the delivered HTML as a JSON
//     script element and read it back out.
//   - Store implementations hold the payload out of band, keyed by pass ID,
//     and hand it out once.
//
// Neither mechanism keeps a payload past the client pass that consumes it.
package transport
