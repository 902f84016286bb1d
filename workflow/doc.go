// Package workflow holds the router subscribers that drive rotations from
// platform interactions: the list shortcut, the workflow step edit and save
// round trip, step execution, the skip button and the /turns slash command.
//
// Subscribers talk to the rotation through TurnService and to the platform
// through the sender bound to each event, so they can be registered on any
// inbound.Router.
package workflow
