package httpapi

type RunStatus struct {
	LastRunAt string `json:"last_run_at"`
	LastOkAt  string `json:"last_ok_at"`
	LastError string `json:"last_error"`
	LastRunID string `json:"last_run_id"`
	LastKept  int    `json:"last_kept"`
	LastNew   int    `json:"last_new"`
	Running   bool   `json:"running"`
}

type overrideBody struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}
