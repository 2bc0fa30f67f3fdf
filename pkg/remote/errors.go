// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import "github.com/cockroachdb/errors"

// errDuplicatedPartUUIDs marks the fatal error raised when the one-shot
// retry after a part UUID collision collides again.
var errDuplicatedPartUUIDs = errors.New("found duplicate uuids while processing query")

// errUnknownPacket marks the fatal error raised on an unrecognized packet
// tag.
var errUnknownPacket = errors.New("unknown packet from server")

// errProfileQueuePush marks the fatal error raised when a profile events
// block cannot be enqueued.
var errProfileQueuePush = errors.New("could not push into profile queue")

func newUnknownPacketError(t PacketType, addresses string) error {
	return errors.Mark(
		errors.Newf("unknown packet %s from one of the following replicas: %s", t, addresses),
		errUnknownPacket)
}

// IsDuplicatedPartUUIDsError reports whether the error is the fatal
// duplicated-part-uuids fault.
func IsDuplicatedPartUUIDsError(err error) bool {
	return errors.Is(err, errDuplicatedPartUUIDs)
}

// IsUnknownPacketError reports whether the error is the unknown-packet
// fault.
func IsUnknownPacketError(err error) bool {
	return errors.Is(err, errUnknownPacket)
}
