package models

// Named queries of the query executor.
const (
	QueryCheckUserByChannel = "check_user_by_channel"
	QueryCreateUser         = "create_user"
	QueryUpdateUser         = "update_user"
	QueryAddBonus           = "add_bonus"
	QuerySpendBonus         = "spend_bonus"
	QueryGetUserBalance     = "get_user_balance"
	QueryGetReferralStats   = "get_referral_stats"
	QuerySendMessage        = "send_message"
)

// Button is an inline keyboard button of an outbound message.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// OutboundMessage is what the messenger delivers to a chat.
type OutboundMessage struct {
	ProjectID      string     `json:"project_id"`
	ChatID         string     `json:"chat_id"`
	Text           string     `json:"text"`
	Buttons        [][]Button `json:"buttons,omitempty"`
	RequestContact bool       `json:"request_contact,omitempty"`
	ContactButton  string     `json:"contact_button,omitempty"`
}
