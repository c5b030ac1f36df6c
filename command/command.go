// Package command defines the tagged command model: one variant per
// supported command, classification helpers (transaction-neutral,
// propagates-to-followers), and a round-trip wire serializer for every
// propagatable variant so the replication coordinator can re-emit a
// leader-executed command bit-for-bit onto the follower stream.
package command

import "github.com/itarato/gokv/resp"

// Kind discriminates the Command sum type.
type Kind int

const (
	Ping Kind = iota
	Echo
	Get
	Set
	Incr
	Rpush
	Lpush
	Lrange
	Llen
	Lpop
	Rpop
	Lpopn
	Rpopn
	Blpop
	Brpop
	TypeOf
	Xadd
	Xrange
	Xread
	Multi
	Exec
	Discard
	Info
	ReplConf
	Psync
	Wait
	ConfigGet
	Keys
	Subscribe
	Unsubscribe
	Publish
	Zadd
	Zrank
	Zscore
	Zrange
	Zcard
	Zrem
	Geoadd
	Unknown
)

// StreamIDKind distinguishes the three spellings a stream entry id may
// take when supplied by a client.
type StreamIDKind int

const (
	// StreamIDExplicit is a fully specified "ms-seq" id.
	StreamIDExplicit StreamIDKind = iota
	// StreamIDMSWildcard is "ms-*": the sequence is auto-allocated.
	StreamIDMSWildcard
	// StreamIDWildcard is "*": both ms and seq are auto-allocated.
	StreamIDWildcard
)

// StreamID is a stream entry id as supplied to XADD, before resolution.
type StreamID struct {
	Kind StreamIDKind
	MS   int64
	Seq  int64
}

// RangeID is a stream range endpoint as supplied to XRANGE/XREAD: either
// an explicit (ms, seq) pair, or one of the "-"/"+" sentinels.
type RangeID struct {
	MS       int64
	Seq      int64
	Min      bool // "-" sentinel: resolves to (0, 1)
	Max      bool // "+" sentinel: resolves to the maximum representable id; XREAD also sets it for "$" (the stream's latest id)
}

// StreamQuery pairs a stream key with the id bound used to query it:
// an inclusive start/end pair for XRANGE, or a strict lower bound for
// XREAD.
type StreamQuery struct {
	Key string
	ID  RangeID
}

// Field is one (field, value) pair appended by XADD.
type Field struct {
	Name  string
	Value string
}

// ScoreMember is one (score, member) pair for ZADD.
type ScoreMember struct {
	Score  float64
	Member string
}

// GeoMember is one (lon, lat, member) triple for GEOADD.
type GeoMember struct {
	Lon, Lat float64
	Member   string
}

// Command is a single tagged command. Only the fields relevant to Kind
// are populated; this is the idiomatic Go rendering of what the original
// implementation models as an enum with per-variant payloads.
type Command struct {
	Kind Kind

	Name string // raw command name, populated for Unknown

	Key  string
	Keys []string // BLPOP/BRPOP key list

	Value     []byte // SET value, ECHO payload, PUBLISH message
	ExpiryMs  int64  // SET PX/EX, converted to milliseconds-to-live
	HasExpiry bool

	Values [][]byte // RPUSH/LPUSH values

	Start, End int64 // LRANGE / ZRANGE bounds

	N int64 // LPOPN/RPOPN count

	TimeoutSecs float64 // BLPOP/BRPOP

	StreamID    StreamID
	Fields      []Field       // XADD
	RangeStart  RangeID       // XRANGE
	RangeEnd    RangeID       // XRANGE
	Queries     []StreamQuery // XREAD
	Count       int64         // XRANGE/XREAD COUNT
	HasCount    bool
	BlockMs     int64 // XREAD BLOCK
	HasBlockMs  bool

	ReplConfArgs []string
	PsyncReplID  string
	PsyncOffset  int64

	WaitCount     int
	WaitTimeoutMs int64

	ConfigParams []string
	Pattern      string
	Channels     []string

	ZMembers []ScoreMember
	Member   string   // ZRANK/ZSCORE
	Members  []string // ZREM

	GeoMembers []GeoMember

	InfoSections []string
}

// IsMulti reports whether this is a MULTI command.
func (c Command) IsMulti() bool { return c.Kind == Multi }

// IsExec reports whether this is an EXEC command.
func (c Command) IsExec() bool { return c.Kind == Exec }

// IsDiscard reports whether this is a DISCARD command.
func (c Command) IsDiscard() bool { return c.Kind == Discard }

// IsPSync reports whether this is a PSYNC command.
func (c Command) IsPSync() bool { return c.Kind == Psync }

// IsReplConf reports whether this is a REPLCONF command.
func (c Command) IsReplConf() bool { return c.Kind == ReplConf }

// IsSubscribe reports whether this is SUBSCRIBE or UNSUBSCRIBE.
func (c Command) IsSubscribe() bool { return c.Kind == Subscribe || c.Kind == Unsubscribe }

// PropagatesToFollowers reports whether a successful execution of this
// command must be mirrored onto the replication stream. Blocking pops are
// deliberately excluded: their effect is already expressed by the
// non-blocking pop they perform internally once unblocked, and that pop
// is what gets propagated, not the blocking call itself.
func (c Command) PropagatesToFollowers() bool {
	switch c.Kind {
	case Set, Rpush, Lpush, Lpop, Rpop, Lpopn, Rpopn, Xadd, Incr, Zadd, Geoadd:
		return true
	default:
		return false
	}
}

// ShortName returns the canonical lower-case command name, used for log
// lines and error messages ("ERR wrong number of arguments for '<name>'").
func (c Command) ShortName() string {
	switch c.Kind {
	case Ping:
		return "ping"
	case Echo:
		return "echo"
	case Get:
		return "get"
	case Set:
		return "set"
	case Incr:
		return "incr"
	case Rpush:
		return "rpush"
	case Lpush:
		return "lpush"
	case Lrange:
		return "lrange"
	case Llen:
		return "llen"
	case Lpop:
		return "lpop"
	case Rpop:
		return "rpop"
	case Lpopn:
		return "lpop"
	case Rpopn:
		return "rpop"
	case Blpop:
		return "blpop"
	case Brpop:
		return "brpop"
	case TypeOf:
		return "type"
	case Xadd:
		return "xadd"
	case Xrange:
		return "xrange"
	case Xread:
		return "xread"
	case Multi:
		return "multi"
	case Exec:
		return "exec"
	case Discard:
		return "discard"
	case Info:
		return "info"
	case ReplConf:
		return "replconf"
	case Psync:
		return "psync"
	case Wait:
		return "wait"
	case ConfigGet:
		return "config"
	case Keys:
		return "keys"
	case Subscribe:
		return "subscribe"
	case Unsubscribe:
		return "unsubscribe"
	case Publish:
		return "publish"
	case Zadd:
		return "zadd"
	case Zrank:
		return "zrank"
	case Zscore:
		return "zscore"
	case Zrange:
		return "zrange"
	case Zcard:
		return "zcard"
	case Zrem:
		return "zrem"
	case Geoadd:
		return "geoadd"
	default:
		return c.Name
	}
}

// ToWire re-serializes a propagatable command back into the array form a
// client would have sent, so the leader can forward it to followers
// byte-for-byte. Only implemented for PropagatesToFollowers() kinds.
func (c Command) ToWire() resp.Value {
	switch c.Kind {
	case Set:
		parts := []resp.Value{resp.Bulk("SET"), resp.Bulk(c.Key), resp.BulkBytesString(c.Value)}
		if c.HasExpiry {
			parts = append(parts, resp.Bulk("PX"), resp.Bulk(itoa(c.ExpiryMs)))
		}
		return resp.Array{Items: parts}
	case Rpush:
		return pushWire("RPUSH", c.Key, c.Values)
	case Lpush:
		return pushWire("LPUSH", c.Key, c.Values)
	case Lpop:
		return resp.Array{Items: []resp.Value{resp.Bulk("LPOP"), resp.Bulk(c.Key)}}
	case Rpop:
		return resp.Array{Items: []resp.Value{resp.Bulk("RPOP"), resp.Bulk(c.Key)}}
	case Lpopn:
		return resp.Array{Items: []resp.Value{resp.Bulk("LPOP"), resp.Bulk(c.Key), resp.Bulk(itoa(c.N))}}
	case Rpopn:
		return resp.Array{Items: []resp.Value{resp.Bulk("RPOP"), resp.Bulk(c.Key), resp.Bulk(itoa(c.N))}}
	case Xadd:
		parts := []resp.Value{resp.Bulk("XADD"), resp.Bulk(c.Key), resp.Bulk(streamIDWire(c.StreamID))}
		for _, f := range c.Fields {
			parts = append(parts, resp.Bulk(f.Name), resp.Bulk(f.Value))
		}
		return resp.Array{Items: parts}
	case Incr:
		return resp.Array{Items: []resp.Value{resp.Bulk("INCR"), resp.Bulk(c.Key)}}
	case Zadd:
		parts := []resp.Value{resp.Bulk("ZADD"), resp.Bulk(c.Key)}
		for _, m := range c.ZMembers {
			parts = append(parts, resp.Bulk(formatFloat(m.Score)), resp.Bulk(m.Member))
		}
		return resp.Array{Items: parts}
	case Geoadd:
		parts := []resp.Value{resp.Bulk("GEOADD"), resp.Bulk(c.Key)}
		for _, g := range c.GeoMembers {
			parts = append(parts,
				resp.Bulk(formatFloat(g.Lon)), resp.Bulk(formatFloat(g.Lat)), resp.Bulk(g.Member))
		}
		return resp.Array{Items: parts}
	default:
		panic("command: ToWire called on a non-propagating command")
	}
}

func pushWire(name, key string, values [][]byte) resp.Value {
	parts := []resp.Value{resp.Bulk(name), resp.Bulk(key)}
	for _, v := range values {
		parts = append(parts, resp.BulkBytesString(v))
	}
	return resp.Array{Items: parts}
}

func streamIDWire(id StreamID) string {
	switch id.Kind {
	case StreamIDWildcard:
		return "*"
	case StreamIDMSWildcard:
		return itoa(id.MS) + "-*"
	default:
		return itoa(id.MS) + "-" + itoa(id.Seq)
	}
}
