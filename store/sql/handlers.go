package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// recordHandlers builds the repository handlers shared by every webhook
// record. All tables use a text id column holding a UUID.
func recordHandlers[T any](newRecord func() T, id func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			ptr := id(record)
			if ptr == nil {
				return uuid.Nil
			}
			return parseUUID(*ptr)
		},
		SetID: func(record T, value uuid.UUID) {
			if ptr := id(record); ptr != nil {
				*ptr = value.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			ptr := id(record)
			if ptr == nil {
				return ""
			}
			return strings.TrimSpace(*ptr)
		},
	}
}

func eventHandlers() repository.ModelHandlers[*eventRecord] {
	return recordHandlers(
		func() *eventRecord { return &eventRecord{} },
		func(record *eventRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func webhookHandlers() repository.ModelHandlers[*webhookRecord] {
	return recordHandlers(
		func() *webhookRecord { return &webhookRecord{} },
		func(record *webhookRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func queueEntryHandlers() repository.ModelHandlers[*queueEntryRecord] {
	return recordHandlers(
		func() *queueEntryRecord { return &queueEntryRecord{} },
		func(record *queueEntryRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func actionHandlers() repository.ModelHandlers[*actionRecord] {
	return recordHandlers(
		func() *actionRecord { return &actionRecord{} },
		func(record *actionRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func apiKeyHandlers() repository.ModelHandlers[*apiKeyRecord] {
	return recordHandlers(
		func() *apiKeyRecord { return &apiKeyRecord{} },
		func(record *apiKeyRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// newID returns a time ordered identifier so keyset scans follow insertion
// order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
