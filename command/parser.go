package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itarato/gokv/resp"
)

// Parse maps an Array wire frame, whose first element is a case-insensitive
// command name, to a Command or a structured error message (already in the
// "ERR ..."/"WRONGTYPE ..." shape the caller converts straight into a
// SimpleError frame).
func Parse(v resp.Value) (Command, error) {
	arr, ok := v.(resp.Array)
	if !ok || arr.Null {
		return Command{}, errf("ERR wrong command type")
	}
	if len(arr.Items) == 0 {
		return Command{}, errf("ERR missing command")
	}

	name, ok := resp.AsString(arr.Items[0])
	if !ok {
		return Command{}, errf("ERR wrong command type")
	}
	lower := strings.ToLower(name)

	args, err := stringsOf(arr.Items)
	if err != nil {
		return Command{}, err
	}

	switch lower {
	case "ping":
		return parsePing(args)
	case "echo":
		return parseEcho(args)
	case "get":
		return parseGet(args)
	case "set":
		return parseSet(args)
	case "incr":
		return parseIncr(args)
	case "rpush":
		return parsePush(Rpush, args)
	case "lpush":
		return parsePush(Lpush, args)
	case "lrange":
		return parseLrange(args)
	case "llen":
		return parseSingleKey(Llen, args)
	case "lpop":
		return parsePop(Lpop, Lpopn, args)
	case "rpop":
		return parsePop(Rpop, Rpopn, args)
	case "blpop":
		return parseBlockingPop(Blpop, args)
	case "brpop":
		return parseBlockingPop(Brpop, args)
	case "type":
		return parseSingleKey(TypeOf, args)
	case "xadd":
		return parseXadd(args)
	case "xrange":
		return parseXrange(args)
	case "xread":
		return parseXread(args)
	case "multi":
		return parseNoArgs(Multi, args)
	case "exec":
		return parseNoArgs(Exec, args)
	case "discard":
		return parseNoArgs(Discard, args)
	case "info":
		return Command{Kind: Info, InfoSections: args[1:]}, nil
	case "replconf":
		return Command{Kind: ReplConf, ReplConfArgs: args[1:]}, nil
	case "psync":
		return parsePsync(args)
	case "wait":
		return parseWait(args)
	case "config":
		return parseConfig(args)
	case "keys":
		return parseSingleKeyAsPattern(args)
	case "subscribe":
		return parseChannels(Subscribe, args)
	case "unsubscribe":
		return parseChannels(Unsubscribe, args)
	case "publish":
		return parsePublish(args)
	case "zadd":
		return parseZadd(args)
	case "zrank":
		return parseKeyMember(Zrank, args)
	case "zscore":
		return parseKeyMember(Zscore, args)
	case "zrange":
		return parseZrange(args)
	case "zcard":
		return parseSingleKey(Zcard, args)
	case "zrem":
		return parseZrem(args)
	case "geoadd":
		return parseGeoadd(args)
	default:
		return Command{}, errf("ERR unknown command '%s'", lower)
	}
}

func errf(format string, a ...any) error { return resp.SimpleError(fmt.Sprintf(format, a...)) }

func stringsOf(items []resp.Value) ([]string, error) {
	out := make([]string, len(items))
	for i, v := range items {
		s, ok := resp.AsString(v)
		if !ok {
			return nil, errf("ERR wrong value type in command arguments")
		}
		out[i] = s
	}
	return out, nil
}

func exact(args []string, n int, name string) error {
	if len(args) != n {
		return errf("ERR wrong number of arguments for '%s' command", name)
	}
	return nil
}

func atLeast(args []string, n int, name string) error {
	if len(args) < n {
		return errf("ERR wrong number of arguments for '%s' command", name)
	}
	return nil
}

func toInt(s, name string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errf("ERR wrong value for '%s' command", name)
	}
	return n, nil
}

func toFloat(s, name string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errf("ERR wrong value for '%s' command", name)
	}
	return f, nil
}

func parsePing(args []string) (Command, error) {
	if err := exact(args, 1, "ping"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Ping}, nil
}

func parseEcho(args []string) (Command, error) {
	if err := exact(args, 2, "echo"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Echo, Value: []byte(args[1])}, nil
}

func parseGet(args []string) (Command, error) {
	if err := exact(args, 2, "get"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Get, Key: args[1]}, nil
}

func parseSet(args []string) (Command, error) {
	if len(args) != 3 && len(args) != 5 {
		return Command{}, errf("ERR wrong number of arguments for 'set' command")
	}
	cmd := Command{Kind: Set, Key: args[1], Value: []byte(args[2])}
	if len(args) == 5 {
		kind := strings.ToLower(args[3])
		n, err := toInt(args[4], "set")
		if err != nil {
			return Command{}, err
		}
		switch kind {
		case "ex":
			cmd.ExpiryMs = n * 1000
		case "px":
			cmd.ExpiryMs = n
		default:
			return Command{}, errf("ERR wrong expiry type for 'set' command")
		}
		cmd.HasExpiry = true
	}
	return cmd, nil
}

func parseIncr(args []string) (Command, error) {
	if err := exact(args, 2, "incr"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Incr, Key: args[1]}, nil
}

func parsePush(kind Kind, args []string) (Command, error) {
	name := "rpush"
	if kind == Lpush {
		name = "lpush"
	}
	if err := atLeast(args, 3, name); err != nil {
		return Command{}, err
	}
	values := make([][]byte, len(args)-2)
	for i, v := range args[2:] {
		values[i] = []byte(v)
	}
	return Command{Kind: kind, Key: args[1], Values: values}, nil
}

func parseLrange(args []string) (Command, error) {
	if err := exact(args, 4, "lrange"); err != nil {
		return Command{}, err
	}
	start, err := toInt(args[2], "lrange")
	if err != nil {
		return Command{}, err
	}
	end, err := toInt(args[3], "lrange")
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: Lrange, Key: args[1], Start: start, End: end}, nil
}

func parseSingleKey(kind Kind, args []string) (Command, error) {
	name := Command{Kind: kind}.ShortName()
	if err := exact(args, 2, name); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Key: args[1]}, nil
}

func parsePop(single, counted Kind, args []string) (Command, error) {
	name := Command{Kind: single}.ShortName()
	switch len(args) {
	case 2:
		return Command{Kind: single, Key: args[1]}, nil
	case 3:
		n, err := toInt(args[2], name)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: counted, Key: args[1], N: n}, nil
	default:
		return Command{}, errf("ERR wrong number of arguments for '%s' command", name)
	}
}

func parseBlockingPop(kind Kind, args []string) (Command, error) {
	name := Command{Kind: kind}.ShortName()
	if err := atLeast(args, 3, name); err != nil {
		return Command{}, err
	}
	timeout, err := toFloat(args[len(args)-1], name)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Keys: args[1 : len(args)-1], TimeoutSecs: timeout}, nil
}

func parseXadd(args []string) (Command, error) {
	if err := atLeast(args, 5, "xadd"); err != nil {
		return Command{}, err
	}
	rest := args[3:]
	if len(rest)%2 != 0 {
		return Command{}, errf("ERR wrong number of arguments for 'xadd' command")
	}
	id, err := parseStreamID(args[2])
	if err != nil {
		return Command{}, err
	}
	fields := make([]Field, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields = append(fields, Field{Name: rest[i], Value: rest[i+1]})
	}
	return Command{Kind: Xadd, Key: args[1], StreamID: id, Fields: fields}, nil
}

func parseStreamID(s string) (StreamID, error) {
	if s == "*" {
		return StreamID{Kind: StreamIDWildcard}, nil
	}
	ms, seq, ok := strings.Cut(s, "-")
	msVal, err := toInt(ms, "xadd")
	if err != nil {
		return StreamID{}, err
	}
	if !ok {
		return StreamID{}, errf("ERR Invalid stream ID specified as stream command argument")
	}
	if seq == "*" {
		return StreamID{Kind: StreamIDMSWildcard, MS: msVal}, nil
	}
	seqVal, err := toInt(seq, "xadd")
	if err != nil {
		return StreamID{}, err
	}
	return StreamID{Kind: StreamIDExplicit, MS: msVal, Seq: seqVal}, nil
}

func parseRangeID(s string, defaultSeq int64) (RangeID, error) {
	switch s {
	case "-":
		return RangeID{Min: true}, nil
	case "+":
		return RangeID{Max: true}, nil
	}
	ms, seq, ok := strings.Cut(s, "-")
	msVal, err := toInt(ms, "xrange")
	if err != nil {
		return RangeID{}, err
	}
	if !ok {
		return RangeID{MS: msVal, Seq: defaultSeq}, nil
	}
	seqVal, err := toInt(seq, "xrange")
	if err != nil {
		return RangeID{}, err
	}
	return RangeID{MS: msVal, Seq: seqVal}, nil
}

func parseXrange(args []string) (Command, error) {
	if len(args) != 4 && len(args) != 6 {
		return Command{}, errf("ERR wrong number of arguments for 'xrange' command")
	}
	start, err := parseRangeID(args[2], 0)
	if err != nil {
		return Command{}, err
	}
	end, err := parseRangeID(args[3], maxInt64)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: Xrange, Key: args[1], RangeStart: start, RangeEnd: end}
	if len(args) == 6 {
		if !strings.EqualFold(args[4], "count") {
			return Command{}, errf("ERR syntax error")
		}
		n, err := toInt(args[5], "xrange")
		if err != nil {
			return Command{}, err
		}
		cmd.Count, cmd.HasCount = n, true
	}
	return cmd, nil
}

const maxInt64 = 1<<63 - 1

func parseXread(args []string) (Command, error) {
	if err := atLeast(args, 3, "xread"); err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: Xread}
	i := 1
	for i < len(args) && !strings.EqualFold(args[i], "streams") {
		switch strings.ToLower(args[i]) {
		case "count":
			if i+1 >= len(args) {
				return Command{}, errf("ERR syntax error")
			}
			n, err := toInt(args[i+1], "xread")
			if err != nil {
				return Command{}, err
			}
			cmd.Count, cmd.HasCount = n, true
			i += 2
		case "block":
			if i+1 >= len(args) {
				return Command{}, errf("ERR syntax error")
			}
			n, err := toInt(args[i+1], "xread")
			if err != nil {
				return Command{}, err
			}
			cmd.BlockMs, cmd.HasBlockMs = n, true
			i += 2
		default:
			return Command{}, errf("ERR syntax error")
		}
	}
	if i >= len(args) || !strings.EqualFold(args[i], "streams") {
		return Command{}, errf("ERR syntax error")
	}
	rest := args[i+1:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return Command{}, errf("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}
	k := len(rest) / 2
	keys, ids := rest[:k], rest[k:]
	queries := make([]StreamQuery, k)
	for j := 0; j < k; j++ {
		var id RangeID
		if ids[j] == "$" {
			id = RangeID{Max: true}
		} else {
			var err error
			id, err = parseRangeID(ids[j], 0)
			if err != nil {
				return Command{}, err
			}
		}
		queries[j] = StreamQuery{Key: keys[j], ID: id}
	}
	cmd.Queries = queries
	return cmd, nil
}

func parseNoArgs(kind Kind, args []string) (Command, error) {
	name := Command{Kind: kind}.ShortName()
	if err := exact(args, 1, name); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind}, nil
}

func parsePsync(args []string) (Command, error) {
	if err := exact(args, 3, "psync"); err != nil {
		return Command{}, err
	}
	offset, err := toInt(args[2], "psync")
	if err != nil {
		if args[2] == "-1" {
			offset = -1
		} else {
			return Command{}, err
		}
	}
	return Command{Kind: Psync, PsyncReplID: args[1], PsyncOffset: offset}, nil
}

func parseWait(args []string) (Command, error) {
	if err := exact(args, 3, "wait"); err != nil {
		return Command{}, err
	}
	n, err := toInt(args[1], "wait")
	if err != nil {
		return Command{}, err
	}
	t, err := toInt(args[2], "wait")
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: Wait, WaitCount: int(n), WaitTimeoutMs: t}, nil
}

func parseConfig(args []string) (Command, error) {
	if err := atLeast(args, 3, "config"); err != nil {
		return Command{}, err
	}
	if !strings.EqualFold(args[1], "get") {
		return Command{}, errf("ERR unknown subcommand '%s'", args[1])
	}
	return Command{Kind: ConfigGet, ConfigParams: args[2:]}, nil
}

func parseSingleKeyAsPattern(args []string) (Command, error) {
	if err := exact(args, 2, "keys"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Keys, Pattern: args[1]}, nil
}

func parseChannels(kind Kind, args []string) (Command, error) {
	name := Command{Kind: kind}.ShortName()
	if err := atLeast(args, 2, name); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Channels: args[1:]}, nil
}

func parsePublish(args []string) (Command, error) {
	if err := exact(args, 3, "publish"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Publish, Channels: []string{args[1]}, Value: []byte(args[2])}, nil
}

func parseZadd(args []string) (Command, error) {
	if err := atLeast(args, 4, "zadd"); err != nil {
		return Command{}, err
	}
	rest := args[2:]
	if len(rest)%2 != 0 {
		return Command{}, errf("ERR syntax error")
	}
	members := make([]ScoreMember, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		score, err := toFloat(rest[i], "zadd")
		if err != nil {
			return Command{}, err
		}
		members = append(members, ScoreMember{Score: score, Member: rest[i+1]})
	}
	return Command{Kind: Zadd, Key: args[1], ZMembers: members}, nil
}

func parseKeyMember(kind Kind, args []string) (Command, error) {
	name := Command{Kind: kind}.ShortName()
	if err := exact(args, 3, name); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Key: args[1], Member: args[2]}, nil
}

func parseZrange(args []string) (Command, error) {
	if err := exact(args, 4, "zrange"); err != nil {
		return Command{}, err
	}
	start, err := toInt(args[2], "zrange")
	if err != nil {
		return Command{}, err
	}
	end, err := toInt(args[3], "zrange")
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: Zrange, Key: args[1], Start: start, End: end}, nil
}

func parseZrem(args []string) (Command, error) {
	if err := atLeast(args, 3, "zrem"); err != nil {
		return Command{}, err
	}
	return Command{Kind: Zrem, Key: args[1], Members: args[2:]}, nil
}

func parseGeoadd(args []string) (Command, error) {
	if err := atLeast(args, 5, "geoadd"); err != nil {
		return Command{}, err
	}
	rest := args[2:]
	if len(rest)%3 != 0 {
		return Command{}, errf("ERR syntax error")
	}
	members := make([]GeoMember, 0, len(rest)/3)
	for i := 0; i < len(rest); i += 3 {
		lon, err := toFloat(rest[i], "geoadd")
		if err != nil {
			return Command{}, err
		}
		lat, err := toFloat(rest[i+1], "geoadd")
		if err != nil {
			return Command{}, err
		}
		members = append(members, GeoMember{Lon: lon, Lat: lat, Member: rest[i+2]})
	}
	return Command{Kind: Geoadd, Key: args[1], GeoMembers: members}, nil
}
