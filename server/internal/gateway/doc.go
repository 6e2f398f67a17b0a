// Package gateway decides which requests may become subscribers.
//
// WebSocket upgrade requests for the subscription path go to the hub. Upgrade
// requests for any other path are answered with a bare 404 and the connection
// is closed without upgrading. Every other request goes to the regular
// handler.
package gateway
