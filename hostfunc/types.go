package hostfunc

// KV store types

type KVGetRequest struct {
	Key     string `json:"key"`
	Default any    `json:"default,omitempty"`
}

type KVSetRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type KVDeleteRequest struct {
	Key string `json:"key"`
}
