package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// GroupRepository provides CRUD access to groups and their memberships.
type GroupRepository interface {
	SaveNewEntity(g models.Group) (*models.Group, error)
	FindByID(id int) (*models.Group, error)
	FindAll() ([]models.Group, error)
	DeleteByID(id int) error
	ExistsByID(id int) (bool, error)
	FindGroupByName(name string) (*models.Group, error)
	Update(g models.Group) (*models.Group, error)
}

// GroupRepositoryImpl stores groups in PostgreSQL. Owners and members are kept as
// logins and resolved through the UserRepository whenever a group is read.
type GroupRepositoryImpl struct {
	Connector *Connector
	Users     UserRepository
	Log       *zerolog.Logger
}

// NewGroupRepository is a constructor that wires the connector and the user collaborator.
func NewGroupRepository(connector *Connector, users UserRepository, log *zerolog.Logger) *GroupRepositoryImpl {
	return &GroupRepositoryImpl{
		Connector: connector,
		Users:     users,
		Log:       log,
	}
}

// groupRow is a group as stored, before user references are resolved.
type groupRow struct {
	id      int
	name    string
	owner   string
	members []string
}

// SaveNewEntity inserts a group and its memberships. Any id on the input is
// ignored; the returned group carries the id assigned by the store.
func (r *GroupRepositoryImpl) SaveNewEntity(g models.Group) (*models.Group, error) {
	if err := validateGroup(g); err != nil {
		return nil, err
	}

	members := uniqueMembers(g.Members)

	var id int
	err := r.inTransaction(func(tx *sql.Tx) error {
		err := tx.QueryRow(`
			INSERT INTO groups (name, owner_login)
			VALUES ($1, $2)
			RETURNING id`,
			g.Name, g.Owner.Login).Scan(&id)
		if err != nil {
			return classifyError("error inserting group", err)
		}

		for i, m := range members {
			err = r.execQuery(tx, "error inserting group member", `
				INSERT INTO group_members (group_id, user_login, position)
				VALUES ($1, $2, $3)`,
				id, m.Login, i)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.Log.Error().Err(err).Str("name", g.Name).Msg("error saving group")
		return nil, err
	}

	r.Log.Info().Int("group_id", id).Str("name", g.Name).Msg("Group saved")

	saved := g
	saved.ID = id
	saved.Members = members
	return &saved, nil
}

// FindByID retrieves a group by id. A nil group and nil error mean it does not exist.
func (r *GroupRepositoryImpl) FindByID(id int) (*models.Group, error) {
	groups, err := r.queryGroups(`SELECT id, name, owner_login FROM groups WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return &groups[0], nil
}

// FindAll retrieves every group ordered by id.
func (r *GroupRepositoryImpl) FindAll() ([]models.Group, error) {
	return r.queryGroups(`SELECT id, name, owner_login FROM groups ORDER BY id`)
}

// FindGroupByName retrieves a group by its exact, case-sensitive name.
func (r *GroupRepositoryImpl) FindGroupByName(name string) (*models.Group, error) {
	groups, err := r.queryGroups(`SELECT id, name, owner_login FROM groups WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return &groups[0], nil
}

// ExistsByID checks if a group with the given id exists.
func (r *GroupRepositoryImpl) ExistsByID(id int) (bool, error) {
	conn, err := r.Connector.GetConnection()
	if err != nil {
		return false, err
	}

	var exists bool
	err = conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classifyError("error checking group existence", err)
	}
	return exists, nil
}

// DeleteByID removes a group and its memberships. Users are left untouched and
// deleting an unknown id is not an error.
func (r *GroupRepositoryImpl) DeleteByID(id int) error {
	err := r.inTransaction(func(tx *sql.Tx) error {
		if err := r.execQuery(tx, "error deleting group members",
			`DELETE FROM group_members WHERE group_id = $1`, id); err != nil {
			return err
		}
		return r.execQuery(tx, "error deleting group", `DELETE FROM groups WHERE id = $1`, id)
	})
	if err != nil {
		r.Log.Error().Err(err).Int("group_id", id).Msg("error deleting group")
		return err
	}

	r.Log.Info().Int("group_id", id).Msg("Group deleted")
	return nil
}

// Update replaces the name, owner and full member list of an existing group.
// Members missing from g are removed and new ones are added.
func (r *GroupRepositoryImpl) Update(g models.Group) (*models.Group, error) {
	if g.ID <= 0 {
		return nil, invalidArgument("group id must be positive, got %d", g.ID)
	}
	if err := validateGroup(g); err != nil {
		return nil, err
	}

	incoming := uniqueMembers(g.Members)

	err := r.inTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE groups SET name = $1, owner_login = $2 WHERE id = $3`,
			g.Name, g.Owner.Login, g.ID)
		if err != nil {
			return classifyError("error updating group", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classifyError("error updating group", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: id %d", ErrGroupNotFound, g.ID)
		}

		stored, err := storedMemberLogins(tx, g.ID)
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(incoming))
		for _, m := range incoming {
			keep[m.Login] = true
		}

		var removed []string
		for login := range stored {
			if !keep[login] {
				removed = append(removed, login)
			}
		}
		if len(removed) > 0 {
			err = r.execQuery(tx, "error removing group members",
				`DELETE FROM group_members WHERE group_id = $1 AND user_login = ANY($2)`,
				g.ID, pq.Array(removed))
			if err != nil {
				return err
			}
		}

		for i, m := range incoming {
			if stored[m.Login] {
				err = r.execQuery(tx, "error reordering group member",
					`UPDATE group_members SET position = $3 WHERE group_id = $1 AND user_login = $2`,
					g.ID, m.Login, i)
			} else {
				err = r.execQuery(tx, "error adding group member", `
					INSERT INTO group_members (group_id, user_login, position)
					VALUES ($1, $2, $3)`,
					g.ID, m.Login, i)
			}
			if err != nil {
				return err
			}
		}

		r.Log.Debug().Int("group_id", g.ID).Int("removed", len(removed)).
			Int("members", len(incoming)).Msg("Group membership replaced")
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrGroupNotFound) {
			r.Log.Error().Err(err).Int("group_id", g.ID).Msg("error updating group")
		}
		return nil, err
	}

	r.Log.Info().Int("group_id", g.ID).Str("name", g.Name).Msg("Group updated")

	return r.FindByID(g.ID)
}

// queryGroups runs a query returning (id, name, owner_login) rows and builds
// fully resolved groups from it. The result is never nil.
func (r *GroupRepositoryImpl) queryGroups(query string, args ...interface{}) ([]models.Group, error) {
	conn, err := r.Connector.GetConnection()
	if err != nil {
		return nil, err
	}

	// Rows are drained before any further query: the pool holds a single connection
	rows, err := scanGroupRows(conn, query, args...)
	if err != nil {
		return nil, err
	}

	groups := make([]models.Group, 0, len(rows))
	if len(rows) == 0 {
		return groups, nil
	}

	if err := loadMembers(conn, rows); err != nil {
		return nil, err
	}

	resolve := newUserResolver(r.Users)
	for _, row := range rows {
		g, err := resolve.group(row)
		if err != nil {
			r.Log.Error().Err(err).Int("group_id", row.id).Msg("error resolving group users")
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, nil
}

// scanGroupRows reads the group rows returned by query.
func scanGroupRows(conn *sql.DB, query string, args ...interface{}) ([]*groupRow, error) {
	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, classifyError("error retrieving groups", err)
	}
	defer rows.Close()

	var groups []*groupRow
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.id, &g.name, &g.owner); err != nil {
			return nil, classifyError("error scanning group", err)
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("error retrieving groups", err)
	}
	return groups, nil
}

// loadMembers attaches the ordered member logins to each group row.
func loadMembers(conn *sql.DB, groups []*groupRow) error {
	ids := make([]int64, len(groups))
	byID := make(map[int]*groupRow, len(groups))
	for i, g := range groups {
		ids[i] = int64(g.id)
		byID[g.id] = g
	}

	rows, err := conn.Query(`
		SELECT group_id, user_login
		FROM group_members
		WHERE group_id = ANY($1)
		ORDER BY group_id, position`,
		pq.Array(ids))
	if err != nil {
		return classifyError("error retrieving group members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID int
		var login string
		if err := rows.Scan(&groupID, &login); err != nil {
			return classifyError("error scanning group member", err)
		}
		if g, ok := byID[groupID]; ok {
			g.members = append(g.members, login)
		}
	}
	if err := rows.Err(); err != nil {
		return classifyError("error retrieving group members", err)
	}
	return nil
}

// storedMemberLogins returns the set of logins currently in the group.
func storedMemberLogins(tx *sql.Tx, groupID int) (map[string]bool, error) {
	rows, err := tx.Query(`SELECT user_login FROM group_members WHERE group_id = $1 FOR UPDATE`, groupID)
	if err != nil {
		return nil, classifyError("error retrieving group members", err)
	}
	defer rows.Close()

	stored := make(map[string]bool)
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, classifyError("error scanning group member", err)
		}
		stored[login] = true
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("error retrieving group members", err)
	}
	return stored, nil
}

// inTransaction runs fn in a transaction, rolling back if it fails.
func (r *GroupRepositoryImpl) inTransaction(fn func(tx *sql.Tx) error) error {
	conn, err := r.Connector.GetConnection()
	if err != nil {
		return err
	}

	tx, err := conn.Begin()
	if err != nil {
		return classifyError("error starting transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.Log.Error().Err(rbErr).Msg("error rolling back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyError("error committing transaction", err)
	}
	return nil
}

func (r *GroupRepositoryImpl) execQuery(tx *sql.Tx, op string, query string, args ...interface{}) error {
	if _, err := tx.Exec(query, args...); err != nil {
		return classifyError(op, err)
	}
	return nil
}

// userResolver turns stored logins into users, looking each login up once per call.
type userResolver struct {
	users UserRepository
	seen  map[string]models.User
}

func newUserResolver(users UserRepository) *userResolver {
	return &userResolver{users: users, seen: make(map[string]models.User)}
}

func (ur *userResolver) user(login string) (models.User, error) {
	if u, ok := ur.seen[login]; ok {
		return u, nil
	}

	u, err := ur.users.FindByID(login)
	if err != nil {
		return models.User{}, fmt.Errorf("error resolving user %q: %w", login, err)
	}
	if u == nil {
		return models.User{}, fmt.Errorf("%w: user %q cannot be resolved", ErrStorage, login)
	}

	ur.seen[login] = *u
	return *u, nil
}

func (ur *userResolver) group(row *groupRow) (models.Group, error) {
	owner, err := ur.user(row.owner)
	if err != nil {
		return models.Group{}, err
	}

	members := make([]models.User, 0, len(row.members))
	for _, login := range row.members {
		m, err := ur.user(login)
		if err != nil {
			return models.Group{}, err
		}
		members = append(members, m)
	}

	return models.Group{
		ID:      row.id,
		Name:    row.name,
		Owner:   owner,
		Members: members,
	}, nil
}

// validateGroup checks the fields every stored group must have.
func validateGroup(g models.Group) error {
	if strings.TrimSpace(g.Name) == "" {
		return invalidArgument("group name is required")
	}
	if strings.TrimSpace(g.Owner.Login) == "" {
		return invalidArgument("group owner is required")
	}
	for i, m := range g.Members {
		if strings.TrimSpace(m.Login) == "" {
			return invalidArgument("group member %d has no login", i)
		}
	}
	return nil
}

// uniqueMembers drops repeated logins, keeping the first occurrence. The result is never nil.
func uniqueMembers(members []models.User) []models.User {
	seen := make(map[string]bool, len(members))
	unique := make([]models.User, 0, len(members))
	for _, m := range members {
		if seen[m.Login] {
			continue
		}
		seen[m.Login] = true
		unique = append(unique, m)
	}
	return unique
}
