package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"rewriteplan/pkg/table"
)

// zkConn is the part of *zk.Conn the catalog uses.
type zkConn interface {
	Get(path string) ([]byte, *zk.Stat, error)
	Children(path string) ([]string, *zk.Stat, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Set(path string, data []byte, version int32) (*zk.Stat, error)
	State() zk.State
	Close()
}

// ZK reads table definitions stored as JSON under <root>/tables/<name>.
type ZK struct {
	conn zkConn
	root string
}

// NewZK connects to servers, e.g. ["zk1:2181", "zk2:2181"].
func NewZK(servers []string, root string, sessionTimeout time.Duration) (*ZK, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	c := &ZK{conn: conn, root: root}
	if err := c.waitConnected(2 * sessionTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	slog.Info("zk catalog connected", "servers", servers, "root", root)
	return c, nil
}

func (c *ZK) Close() error {
	c.conn.Close()
	return nil
}

func (c *ZK) tablesPath() string {
	return path.Join(c.root, "tables")
}

func (c *ZK) tablePath(name string) string {
	return path.Join(c.tablesPath(), name)
}

func (c *ZK) LoadTable(_ context.Context, name string) (table.Table, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, notFound(name)
	}
	data, _, err := c.conn.Get(c.tablePath(name))
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("zk get %s: %w", name, err)
	}

	var md table.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", name, err)
	}
	if md.TableName == "" {
		md.TableName = name
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return &md, nil
}

// ListTables returns table names in ascending order.
func (c *ZK) ListTables(context.Context) ([]string, error) {
	children, _, err := c.conn.Children(c.tablesPath())
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nil, nil
		}
		return nil, fmt.Errorf("zk children: %w", err)
	}
	slices.Sort(children)
	return children, nil
}

// Put stores md, creating parent nodes as needed.
func (c *ZK) Put(md *table.Metadata) error {
	if err := md.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(md)
	if err != nil {
		return err
	}
	if err := c.ensurePath(c.tablesPath()); err != nil {
		return fmt.Errorf("ensure tables path: %w", err)
	}

	p := c.tablePath(md.TableName)
	_, err = c.conn.Create(p, data, 0, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		_, err = c.conn.Set(p, data, -1)
	}
	if err != nil {
		return fmt.Errorf("zk put %s: %w", md.TableName, err)
	}
	return nil
}

// Watch calls onChange with the table list now and after every change until
// ctx is done.
func (c *ZK) Watch(ctx context.Context, onChange func(tables []string)) {
	go func() {
		for {
			children, _, ch, err := c.conn.ChildrenW(c.tablesPath())
			if err != nil {
				slog.Warn("zk watch failed", "path", c.tablesPath(), "error", err)
				select {
				case <-time.After(2 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			slices.Sort(children)
			onChange(children)

			select {
			case ev := <-ch:
				slog.Debug("zk event", "type", ev.Type, "path", ev.Path)
			case <-ctx.Done():
				slog.Info("zk watch stopped")
				return
			}
		}
	}()
}

func (c *ZK) ensurePath(p string) error {
	cur := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		cur = cur + "/" + part
		exists, _, err := c.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = c.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (c *ZK) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := c.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
