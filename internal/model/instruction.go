package model

// Status 更新状态（封闭枚举）
type Status string

const (
	StatusWIP Status = "WIP" // Work In Progress
	StatusCOM Status = "COM" // Completed
)

// Target 一组完整的定位字段取值（字段名 → 值）
type Target map[string]string

// Instruction 由 oracle 候选解析出的一条指令，立即交给 Resolver 消费
type Instruction struct {
	Text       string   `json:"text"`       // 该指令对应的原始文本
	Targets    []Target `json:"targets"`    // 已展开的定位组合
	WorkTerms  []string `json:"workTerms"`  // 工作项（对应列）
	StatusWord string   `json:"statusWord"` // 原始状态词，Resolver 负责归一化
	Quantities []string `json:"quantities"` // 原始数量，Resolver 负责校验
}

// ResolvedUpdate Resolver 对一个 (行, 列) 的解析结果
type ResolvedUpdate struct {
	Row         int        `json:"row"`
	Column      string     `json:"column"`
	Status      Status     `json:"status"`
	Quantity    float64    `json:"quantity"`
	Feedback    string     `json:"feedback"`
	ColumnLabel string     `json:"columnLabel"`
	KeyFields   []KeyField `json:"keyFields"`
	Instruction string     `json:"instruction"`
}
