package c4dto

type JoinRequest struct {
	Code string `json:"code"`
}

// MoveRequest uses a pointer so a missing column is told apart from column 0.
type MoveRequest struct {
	Column *int `json:"column"`
}
