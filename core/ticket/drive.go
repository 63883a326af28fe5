package ticket

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveFinder searches a Google Drive folder for rendered ticket
// images, newest first, matching the user's name or email.
type DriveFinder struct {
	svc      *drive.Service
	folderID string
}

// NewDriveFinder builds a read-only Drive client from a service
// account credentials file.
func NewDriveFinder(ctx context.Context, folderID, credentialsFile string) (*DriveFinder, error) {
	if folderID == "" {
		return nil, fmt.Errorf("ticket: drive folder id is required")
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("ticket: drive service: %w", err)
	}
	return &DriveFinder{svc: svc, folderID: folderID}, nil
}

// escapeQuery guards single quotes inside a Drive query literal.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, `'`, `\'`)
}

// FindTicket returns the newest file in the folder whose name contains
// the user's name or email.
func (f *DriveFinder) FindTicket(ctx context.Context, name, email string) ([]byte, bool, error) {
	query := fmt.Sprintf("parents in '%s' and (name contains '%s' or name contains '%s')",
		f.folderID, escapeQuery(name), escapeQuery(email))

	list, err := f.svc.Files.List().
		Q(query).
		OrderBy("createdTime desc").
		PageSize(10).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, false, fmt.Errorf("ticket: drive search: %w", err)
	}
	if len(list.Files) == 0 {
		return nil, false, nil
	}

	newest := list.Files[0]
	resp, err := f.svc.Files.Get(newest.Id).Context(ctx).Download()
	if err != nil {
		return nil, false, fmt.Errorf("ticket: drive download %s: %w", newest.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("ticket: drive read %s: %w", newest.Name, err)
	}
	return data, true, nil
}
