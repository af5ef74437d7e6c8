package cst

const (
	// Assistant is the role of an assistant, means the turn is returned by ChatModel.
	Assistant = "assistant"
	// User is the role of a user, means the turn is a user message.
	User = "user"
	// System is the role of a system, only used in prompts and never persisted.
	System = "system"
)

// 对话状态
const (
	StatusActive     = "active"
	StatusInProgress = "in-progress"
	StatusArchived   = "archived"
)

// MinSummaryTurns 少于该消息数的对话不做摘要
const MinSummaryTurns = 2

// 累计用量字段
const (
	PromptTokens     = "prompt_tokens"
	CompletionTokens = "completion_tokens"
	TotalTokens      = "total_tokens"
)

// mapper层字段枚举
const (
	Id                = "_id"
	ConversationId    = "conversation_id"
	UserId            = "user_id"
	Title             = "title"
	Summary           = "summary"
	SummarizedThrough = "summarized_through"
	SummaryClaimUntil = "summary_claim_until"
	Model             = "model"
	TokenUsage        = "token_usage"
	Status            = "status"
	Archived          = "archived"
	TurnCount         = "turn_count"
	ActiveUserTurns   = "active_user_turns"
	LastActivityAt    = "last_activity_at"
	CreateTime        = "created_at"
	UpdateTime        = "updated_at"
	Index             = "index"
	Role              = "role"
	Content           = "content"

	Set    = "$set"
	Unset  = "$unset"
	Inc    = "$inc"
	In     = "$in"
	NE     = "$ne"
	LT     = "$lt"
	LTE    = "$lte"
	GT     = "$gt"
	GTE    = "$gte"
	Exists = "$exists"
	Expr   = "$expr"
	Or     = "$or"
)

// 存储驱动
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)
