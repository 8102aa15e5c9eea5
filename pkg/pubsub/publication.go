package pubsub

// Publication is a single unit of work: Data to be published to Channel.
//
// A Publication is treated as immutable once passed to Send; callers must not
// modify Data afterwards.
type Publication struct {
	Channel string
	Data    []byte
}
