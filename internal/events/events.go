// Package events defines the typed event stream produced by the session engine.
package events

import "time"

// Event kinds
const (
	KindStatus          = "connection.status"
	KindConnected       = "connection.established"
	KindRegistered      = "connection.registered"
	KindDisconnected    = "connection.lost"
	KindError           = "error"
	KindLag             = "connection.lag"
	KindRawLine         = "raw"
	KindChatMessage     = "message.received"
	KindNotice          = "notice.received"
	KindJoined          = "user.joined"
	KindParted          = "user.parted"
	KindQuit            = "user.quit"
	KindKicked          = "user.kicked"
	KindNickChanged     = "user.nick"
	KindInvited         = "user.invited"
	KindTopic           = "channel.topic"
	KindTopicInfo       = "channel.topic.info"
	KindTopicWhoTime    = "channel.topic.whotime"
	KindModeChanged     = "channel.mode"
	KindChannelUserMode = "channel.usermode"
	KindChannelModeIs   = "channel.modeis"
	KindNames           = "channel.names"
	KindNamesEnd        = "channel.names.end"
	KindJoinError       = "channel.join.error"
	KindListStart       = "list.start"
	KindListItem        = "list.item"
	KindListEnd         = "list.end"
	KindListEntry       = "channel.list.entry"
	KindListEntryEnd    = "channel.list.end"
	KindCTCPRequest     = "ctcp.request"
	KindCTCPReply       = "ctcp.reply"
	KindDCCOffer        = "dcc.offer"
	KindISupport        = "server.isupport"
	KindServerText      = "server.text"
	KindOperStatus      = "oper.status"
	KindOperBroadcast   = "oper.broadcast"
)

// Event is one immutable value of the closed set below
type Event interface {
	Kind() string
	isEvent()
}

type sealed struct{}

func (sealed) isEvent() {}

// Status is informational text for the server buffer (or Buffer when set)
type Status struct {
	sealed
	Text   string
	Buffer string
}

// Connected is emitted once the transport is up
type Connected struct {
	sealed
	Server  string
	TLSInfo string
}

// Registered is emitted on 001
type Registered struct {
	sealed
	Nick string
	Text string
}

// Disconnected ends every attempt. Quiet disconnects are not errors.
type Disconnected struct {
	sealed
	Reason string
	Quiet  bool
}

// Error is a user-facing failure. Category is set for transport failures.
type Error struct {
	sealed
	Text     string
	Category string
}

// Lag is the round trip of the last lag probe
type Lag struct {
	sealed
	RTT time.Duration
}

// RawLine is every line as it crossed the wire
type RawLine struct {
	sealed
	Line     string
	Outbound bool
}

// ChatMessage is a PRIVMSG (or CTCP ACTION)
type ChatMessage struct {
	sealed
	Target string
	From   string
	Text   string
	// StatusPrefix is set for STATUSMSG targets such as @#channel
	StatusPrefix string
	Action       bool
	Self         bool
	History      bool
	Time         time.Time
	MsgID        string
	Account      string
}

// Notice is a NOTICE from a user or a server
type Notice struct {
	sealed
	Target       string
	From         string
	Text         string
	StatusPrefix string
	FromServer   bool
	Self         bool
	History      bool
	Time         time.Time
}

type Joined struct {
	sealed
	Channel  string
	Nick     string
	Account  string
	Realname string
	Self     bool
	History  bool
	Time     time.Time
}

type Parted struct {
	sealed
	Channel string
	Nick    string
	Reason  string
	Self    bool
	History bool
	Time    time.Time
}

type Quit struct {
	sealed
	Nick    string
	Reason  string
	Self    bool
	History bool
	Time    time.Time
}

type Kicked struct {
	sealed
	Channel string
	Nick    string
	By      string
	Reason  string
	Self    bool
	History bool
	Time    time.Time
}

type NickChanged struct {
	sealed
	Old  string
	New  string
	Self bool
	Time time.Time
}

type Invited struct {
	sealed
	Channel string
	By      string
	Nick    string
	Self    bool
}

// Topic is a live TOPIC change
type Topic struct {
	sealed
	Channel string
	Topic   string
	By      string
	History bool
	Time    time.Time
}

// TopicInfo is the topic reported on join (332)
type TopicInfo struct {
	sealed
	Channel string
	Topic   string
}

// TopicWhoTime is 333
type TopicWhoTime struct {
	sealed
	Channel string
	SetBy   string
	SetAt   time.Time
}

// ModeChanged is the readable summary of a MODE line
type ModeChanged struct {
	sealed
	Target string
	By     string
	Modes  string
	Args   []string
	Text   string
}

// ChannelUserMode is one rank change (op, voice, ...) for one nick
type ChannelUserMode struct {
	sealed
	Channel string
	Nick    string
	Mode    rune
	Symbol  rune
	Added   bool
	By      string
}

// ChannelModeIs is 324
type ChannelModeIs struct {
	sealed
	Channel string
	Modes   string
	Args    []string
}

// Member is one NAMES entry; Prefixes holds rank symbols, highest first
type Member struct {
	Nick     string
	Prefixes string
	User     string
	Host     string
}

type Names struct {
	sealed
	Channel string
	Members []Member
}

type NamesEnd struct {
	sealed
	Channel string
}

type JoinError struct {
	sealed
	Channel string
	Code    string
	Reason  string
}

type ListStart struct {
	sealed
}

type ListItem struct {
	sealed
	Channel string
	Users   int
	Topic   string
}

type ListEnd struct {
	sealed
}

// ModeList names a channel mask list
type ModeList string

const (
	BanList             ModeList = "ban"
	QuietList           ModeList = "quiet"
	ExceptionList       ModeList = "exception"
	InviteExceptionList ModeList = "invite-exception"
)

// ListEntry is one mask of a ban/quiet/exception/invite-exception list
type ListEntry struct {
	sealed
	List    ModeList
	Channel string
	Mask    string
	SetBy   string
	SetAt   time.Time
}

type ListEntryEnd struct {
	sealed
	List    ModeList
	Channel string
}

type CTCPRequest struct {
	sealed
	From    string
	Target  string
	Command string
	Args    string
	Time    time.Time
}

type CTCPReply struct {
	sealed
	From    string
	Command string
	Args    string
}

// DCCOffer is a parsed DCC SEND/TSEND/CHAT offer. Passive offers (port 0)
// carry a Token.
type DCCOffer struct {
	sealed
	From     string
	Type     string
	Filename string
	Host     string
	Port     int
	Size     int64
	Token    string
}

// PrefixMode pairs a rank mode letter with its nick-list symbol
type PrefixMode struct {
	Mode   rune
	Symbol rune
}

// ISupport is a snapshot of the server dialect after a 005 line
type ISupport struct {
	sealed
	ChanTypes   string
	CaseMapping string
	StatusMsg   string
	ChanModes   [4]string
	Prefix      []PrefixMode
	Network     string
}

// ServerText is a numeric reply rendered as text. Buffer is set when the
// reply belongs to a routed WHOIS.
type ServerText struct {
	sealed
	Code   string
	Text   string
	Buffer string
}

type OperStatus struct {
	sealed
	Oper bool
	Text string
}

// OperBroadcast is WALLOPS, GLOBOPS, LOCOPS, OPERWALL or SNOTICE text
type OperBroadcast struct {
	sealed
	Type string
	From string
	Text string
}

func (Status) Kind() string          { return KindStatus }
func (Connected) Kind() string       { return KindConnected }
func (Registered) Kind() string      { return KindRegistered }
func (Disconnected) Kind() string    { return KindDisconnected }
func (Error) Kind() string           { return KindError }
func (Lag) Kind() string             { return KindLag }
func (RawLine) Kind() string         { return KindRawLine }
func (ChatMessage) Kind() string     { return KindChatMessage }
func (Notice) Kind() string          { return KindNotice }
func (Joined) Kind() string          { return KindJoined }
func (Parted) Kind() string          { return KindParted }
func (Quit) Kind() string            { return KindQuit }
func (Kicked) Kind() string          { return KindKicked }
func (NickChanged) Kind() string     { return KindNickChanged }
func (Invited) Kind() string         { return KindInvited }
func (Topic) Kind() string           { return KindTopic }
func (TopicInfo) Kind() string       { return KindTopicInfo }
func (TopicWhoTime) Kind() string    { return KindTopicWhoTime }
func (ModeChanged) Kind() string     { return KindModeChanged }
func (ChannelUserMode) Kind() string { return KindChannelUserMode }
func (ChannelModeIs) Kind() string   { return KindChannelModeIs }
func (Names) Kind() string           { return KindNames }
func (NamesEnd) Kind() string        { return KindNamesEnd }
func (JoinError) Kind() string       { return KindJoinError }
func (ListStart) Kind() string       { return KindListStart }
func (ListItem) Kind() string        { return KindListItem }
func (ListEnd) Kind() string         { return KindListEnd }
func (ListEntry) Kind() string       { return KindListEntry }
func (ListEntryEnd) Kind() string    { return KindListEntryEnd }
func (CTCPRequest) Kind() string     { return KindCTCPRequest }
func (CTCPReply) Kind() string       { return KindCTCPReply }
func (DCCOffer) Kind() string        { return KindDCCOffer }
func (ISupport) Kind() string        { return KindISupport }
func (ServerText) Kind() string      { return KindServerText }
func (OperStatus) Kind() string      { return KindOperStatus }
func (OperBroadcast) Kind() string   { return KindOperBroadcast }
