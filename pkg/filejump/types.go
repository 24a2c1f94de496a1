package filejump

// EntryRecord is the wire representation of a file or folder as the
// FileJump API returns it. parent_id is null for entries directly under
// the drive root.
type EntryRecord struct {
	ID          int64  `json:"id"`
	ParentID    *int64 `json:"parent_id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	FileSize    int64  `json:"file_size"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Description string `json:"description"`
}

// EntriesResponse is one page of GET /api/v1/drive/file-entries.
// NextPage is null on the last page.
type EntriesResponse struct {
	Data     []EntryRecord `json:"data"`
	NextPage *int          `json:"next_page"`
}

// FolderResponse is returned by POST /api/v1/folders.
type FolderResponse struct {
	Folder EntryRecord `json:"folder"`
}

// UploadResponse is returned by POST /api/v1/uploads.
type UploadResponse struct {
	FileEntry EntryRecord `json:"fileEntry"`
}

// DeleteRequest is the body for POST /api/v1/file-entries/delete.
type DeleteRequest struct {
	EntryIDs      []int64 `json:"entryIds"`
	DeleteForever bool    `json:"deleteForever"`
}

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	TokenName string `json:"token_name"`
}

// LoginResponse is returned by POST /api/v1/auth/login.
type LoginResponse struct {
	User struct {
		AccessToken string `json:"access_token"`
		Email       string `json:"email"`
	} `json:"user"`
}
