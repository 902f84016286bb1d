// Package inbound classifies platform payloads into event keys and routes
// them to subscribed handlers.
//
// A dispatch fans out to every matching handler concurrently and settles
// only when all of them have returned. Handler errors are collected per
// handler and never abort siblings.
package inbound
