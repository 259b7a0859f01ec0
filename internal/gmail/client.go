package gmail

import (
	"context"
	"fmt"

	gm "google.golang.org/api/gmail/v1"
)

// System label IDs used by the triage actions.
const (
	LabelInbox   = "INBOX"
	LabelStarred = "STARRED"
)

// Client wraps the Gmail Users service for one mailbox.
// It is not safe for concurrent use.
type Client struct {
	svc    *gm.UsersService
	user   string
	labels map[string]string // label name -> label ID
}

// NewClient returns a Client operating on the authenticated user ("me").
func NewClient(svc *gm.Service) *Client {
	return &Client{
		svc:    svc.Users,
		user:   "me",
		labels: make(map[string]string),
	}
}

// BuildQuery returns the Gmail search query for messages newer than sinceDays.
func BuildQuery(sinceDays int) string {
	return fmt.Sprintf("newer_than:%dd", sinceDays)
}

// ListMessageIDs returns up to maxResults message IDs matching query,
// following pagination as needed.
func (c *Client) ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		remaining := maxResults - int64(len(ids))
		if remaining <= 0 {
			break
		}
		// Gmail caps a page at 500 ids.
		pageSize := min(remaining, 500)

		req := c.svc.Messages.List(c.user).Q(query).MaxResults(pageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range resp.Messages {
			if m != nil && m.Id != "" {
				ids = append(ids, m.Id)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

// GetMessage fetches a complete message by ID.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gm.Message, error) {
	msg, err := c.svc.Messages.Get(c.user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	return msg, nil
}

// EnsureLabel returns the ID of the user label with the given name, creating
// it if it does not exist yet. IDs are remembered for the life of the Client.
func (c *Client) EnsureLabel(ctx context.Context, name string) (string, error) {
	if id, ok := c.labels[name]; ok {
		return id, nil
	}

	resp, err := c.svc.Labels.List(c.user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, lb := range resp.Labels {
		if lb.Name == name {
			c.labels[name] = lb.Id
			return lb.Id, nil
		}
	}

	created, err := c.svc.Labels.Create(c.user, &gm.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	c.labels[name] = created.Id
	return created.Id, nil
}

// AddLabels adds the given label IDs to a message.
func (c *Client) AddLabels(ctx context.Context, messageID string, labelIDs []string) error {
	return c.modify(ctx, messageID, labelIDs, nil)
}

// Star adds the STARRED system label to a message.
func (c *Client) Star(ctx context.Context, messageID string) error {
	return c.modify(ctx, messageID, []string{LabelStarred}, nil)
}

// Archive removes a message from the inbox.
func (c *Client) Archive(ctx context.Context, messageID string) error {
	return c.modify(ctx, messageID, nil, []string{LabelInbox})
}

func (c *Client) modify(ctx context.Context, messageID string, add, remove []string) error {
	_, err := c.svc.Messages.Modify(c.user, messageID, &gm.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify message %s: %w", messageID, err)
	}
	return nil
}
