// Package relay delivers messages to a destination endpoint.
//
// # Delivery
//
// Dispatcher.Deliver makes a primary attempt using the endpoint's native
// send operation (text send, or file send by remote reference). If that
// attempt fails for any reason other than a permission or ban error, a
// single fallback attempt is made with ForceDocument set; file messages are
// first downloaded from the source and re-uploaded as raw bytes.
//
// # Errors
//
// Client implementations mark authorization failures with ErrWriteForbidden
// and ErrBanned. Classify turns an error into a Class before any retry
// decision is taken, and every failure returned by Deliver is a
// *DeliveryError carrying that Class.
//
// The package keeps no per-destination queue or lock; callers that need
// ordered delivery to one destination must serialize their calls.
package relay
