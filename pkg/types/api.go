package types

// HTTP bodies of the relay's room directory.

type CreateRoomRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

type CreateRoomResponse struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
