package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldKind      = "kind"
	FieldOwnerID   = "owner_id"
	FieldRecordID  = "record_id"
	FieldCacheKey  = "cache_key"
	FieldCount     = "count"
	FieldSource    = "source"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldState     = "state"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentSync    = "sync"
	ComponentCache   = "cache"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpSnapshot = "snapshot"
	OpSync     = "sync"
	OpSignOut  = "sign_out"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// Sources a load can be satisfied from.
const (
	SourceCache  = "cache"
	SourceRemote = "remote"
	SourceMemory = "memory"
	SourceLocal  = "local"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCollection adds the kind/owner pair a cache key is built from.
func (f LogFields) WithCollection(kind, ownerID string) LogFields {
	f[FieldKind] = kind
	f[FieldOwnerID] = ownerID
	return f
}

// WithRecord adds the record id
func (f LogFields) WithRecord(id string) LogFields {
	f[FieldRecordID] = id
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
