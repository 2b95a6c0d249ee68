package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	schemaV1 uint8 = 1
	schemaV2 uint8 = 2
)

// ErrCorrupt is an exported constant or variable used by the session store.
var ErrCorrupt = errors.New("session record corrupt")

// Encode writes r in the current schema. The session ID is the Redis key and is
// not part of the blob.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)

	for _, field := range []struct {
		name, value string
	}{
		{"userID", r.UserID},
		{"email", r.Email},
		{"deviceKey", r.DeviceKey},
	} {
		if len(field.value) > 255 {
			return nil, fmt.Errorf("%s too long", field.name)
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	buf.Write(r.IPHash[:])
	buf.Write(r.UserAgentHash[:])

	return buf.Bytes(), nil
}

// Decode reads any supported schema. Older blobs decode with zero values for the
// fields they lack and keep their SchemaVersion so the store can rewrite them.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != schemaV1 && version != schemaV2 {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorrupt, version)
	}

	r := &Record{SchemaVersion: version}
	if r.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if r.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if r.DeviceKey, err = readString(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if version >= schemaV2 {
		if _, err := io.ReadFull(reader, r.IPHash[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if _, err := io.ReadFull(reader, r.UserAgentHash[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	if r.UserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrCorrupt)
	}
	return r, nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(b), nil
}
