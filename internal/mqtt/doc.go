// Package mqtt publishes practice events to an MQTT broker so home
// automation or dashboards can react to dictation sessions.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a retained "online" birth message to the
// availability topic; a will message flips it to "offline" on
// unexpected disconnects. Events are fire-and-forget: when the broker
// is unreachable they are dropped rather than queued.
package mqtt
