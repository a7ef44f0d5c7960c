package config

// Caps is the client's capability preference set
type Caps struct {
	ServerTime      bool `yaml:"server_time" toml:"server_time" json:"server_time" env:"SERVER_TIME"`
	MessageTags     bool `yaml:"message_tags" toml:"message_tags" json:"message_tags" env:"MESSAGE_TAGS"`
	Batch           bool `yaml:"batch" toml:"batch" json:"batch" env:"BATCH"`
	EchoMessage     bool `yaml:"echo_message" toml:"echo_message" json:"echo_message" env:"ECHO_MESSAGE"`
	AwayNotify      bool `yaml:"away_notify" toml:"away_notify" json:"away_notify" env:"AWAY_NOTIFY"`
	AccountNotify   bool `yaml:"account_notify" toml:"account_notify" json:"account_notify" env:"ACCOUNT_NOTIFY"`
	AccountTag      bool `yaml:"account_tag" toml:"account_tag" json:"account_tag" env:"ACCOUNT_TAG"`
	ExtendedJoin    bool `yaml:"extended_join" toml:"extended_join" json:"extended_join" env:"EXTENDED_JOIN"`
	MultiPrefix     bool `yaml:"multi_prefix" toml:"multi_prefix" json:"multi_prefix" env:"MULTI_PREFIX"`
	UserhostInNames bool `yaml:"userhost_in_names" toml:"userhost_in_names" json:"userhost_in_names" env:"USERHOST_IN_NAMES"`
	Chghost         bool `yaml:"chghost" toml:"chghost" json:"chghost" env:"CHGHOST"`
	InviteNotify    bool `yaml:"invite_notify" toml:"invite_notify" json:"invite_notify" env:"INVITE_NOTIFY"`
	CapNotify       bool `yaml:"cap_notify" toml:"cap_notify" json:"cap_notify" env:"CAP_NOTIFY"`
	Setname         bool `yaml:"setname" toml:"setname" json:"setname" env:"SETNAME"`
	LabeledResponse bool `yaml:"labeled_response" toml:"labeled_response" json:"labeled_response" env:"LABELED_RESPONSE"`
	Chathistory     bool `yaml:"chathistory" toml:"chathistory" json:"chathistory" env:"CHATHISTORY"`
	EventPlayback   bool `yaml:"event_playback" toml:"event_playback" json:"event_playback" env:"EVENT_PLAYBACK"`
	StandardReplies bool `yaml:"standard_replies" toml:"standard_replies" json:"standard_replies" env:"STANDARD_REPLIES"`
	MessageIDs      bool `yaml:"message_ids" toml:"message_ids" json:"message_ids" env:"MESSAGE_IDS"`
}

// AllCaps enables every preference
func AllCaps() Caps {
	return Caps{
		ServerTime: true, MessageTags: true, Batch: true, EchoMessage: true,
		AwayNotify: true, AccountNotify: true, AccountTag: true, ExtendedJoin: true,
		MultiPrefix: true, UserhostInNames: true, Chghost: true, InviteNotify: true,
		CapNotify: true, Setname: true, LabeledResponse: true, Chathistory: true,
		EventPlayback: true, StandardReplies: true, MessageIDs: true,
	}
}

// Names returns the wire capability names to request, in a stable order
func (c Caps) Names() []string {
	var names []string
	add := func(on bool, caps ...string) {
		if on {
			names = append(names, caps...)
		}
	}
	add(c.ServerTime, "server-time")
	add(c.MessageTags, "message-tags")
	add(c.Batch, "batch")
	add(c.EchoMessage, "echo-message")
	add(c.AwayNotify, "away-notify")
	add(c.AccountNotify, "account-notify")
	add(c.AccountTag, "account-tag")
	add(c.ExtendedJoin, "extended-join")
	add(c.MultiPrefix, "multi-prefix")
	add(c.UserhostInNames, "userhost-in-names")
	add(c.Chghost, "chghost")
	add(c.InviteNotify, "invite-notify")
	add(c.CapNotify, "cap-notify")
	add(c.Setname, "setname")
	add(c.LabeledResponse, "labeled-response")
	add(c.Chathistory, "draft/chathistory", "chathistory")
	add(c.EventPlayback, "draft/event-playback")
	add(c.StandardReplies, "standard-replies")
	add(c.MessageIDs, "message-ids")
	return names
}
