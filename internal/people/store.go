package people

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridworld/internal/calendar"
)

// ErrSpouseTaken is returned when a family insert finds that one of the
// spouses has been married by a concurrent operation since the caller's
// eligibility read.
var ErrSpouseTaken = errors.New("spouse already in an active family")

// ErrNotFound is returned when a person or family does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite connection holding all person and family records.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates the database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	st := &Store{conn: conn}
	if err := st.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS people (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		male INTEGER NOT NULL,
		tile_id INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		family_id INTEGER,
		birth_year INTEGER NOT NULL,
		birth_month INTEGER NOT NULL,
		birth_day INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS families (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		husband_id INTEGER NOT NULL,
		wife_id INTEGER NOT NULL,
		tile_id INTEGER NOT NULL,
		active INTEGER NOT NULL,
		fertile INTEGER NOT NULL,
		created_year INTEGER NOT NULL,
		created_month INTEGER NOT NULL,
		created_day INTEGER NOT NULL,
		pregnancy INTEGER NOT NULL,
		due_year INTEGER,
		due_month INTEGER,
		due_day INTEGER
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		person_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_people_tile ON people(tile_id);
	CREATE INDEX IF NOT EXISTS idx_people_alive ON people(alive);
	CREATE INDEX IF NOT EXISTS idx_people_family ON people(family_id);
	CREATE INDEX IF NOT EXISTS idx_families_tile ON families(tile_id);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(year, month, day);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// InsertPerson stores a new person and returns their assigned ID.
func (s *Store) InsertPerson(p *Person) (PersonID, error) {
	res, err := s.conn.Exec(`INSERT INTO people
		(first_name, last_name, male, tile_id, alive, family_id,
		 birth_year, birth_month, birth_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FirstName, p.LastName, p.Male, p.TileID, p.Alive, p.FamilyID,
		p.BirthYear, p.BirthMonth, p.BirthDay,
	)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert person id: %w", err)
	}
	p.ID = PersonID(id)
	return p.ID, nil
}

// GetPerson fetches one person by ID.
func (s *Store) GetPerson(id PersonID) (Person, error) {
	var p Person
	err := s.conn.Get(&p, "SELECT * FROM people WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Person{}, ErrNotFound
	}
	if err != nil {
		return Person{}, fmt.Errorf("get person %d: %w", id, err)
	}
	return p, nil
}

// EligibleAdults returns living, unmarried people on the tile born on or
// before the cutoff date (age >= threshold as of the caller's today).
// Order is unspecified; callers randomize.
func (s *Store) EligibleAdults(tileID int, bornOnOrBefore calendar.Date) ([]Person, error) {
	var out []Person
	err := s.conn.Select(&out, `SELECT * FROM people
		WHERE tile_id = ? AND alive = 1 AND family_id IS NULL
		  AND (birth_year < ?
		       OR (birth_year = ? AND (birth_month < ?
		           OR (birth_month = ? AND birth_day <= ?))))`,
		tileID,
		bornOnOrBefore.Year, bornOnOrBefore.Year,
		bornOnOrBefore.Month, bornOnOrBefore.Month,
		bornOnOrBefore.Day,
	)
	if err != nil {
		return nil, fmt.Errorf("eligible adults tile %d: %w", tileID, err)
	}
	return out, nil
}

// InsertFamily creates an active family for the given couple and marks both
// spouses married, all in one transaction. Both spouses are re-read inside
// the transaction; if either is dead or already married, ErrSpouseTaken is
// returned and nothing is written.
func (s *Store) InsertFamily(husbandID, wifeID PersonID, tileID int, created calendar.Date, fertile bool) (Family, error) {
	tx, err := s.conn.Beginx()
	if err != nil {
		return Family{}, err
	}
	defer tx.Rollback()

	for _, id := range []PersonID{husbandID, wifeID} {
		var p Person
		if err := tx.Get(&p, "SELECT * FROM people WHERE id = ?", id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Family{}, ErrNotFound
			}
			return Family{}, fmt.Errorf("recheck person %d: %w", id, err)
		}
		if !p.Alive || p.FamilyID != nil {
			return Family{}, ErrSpouseTaken
		}
	}

	res, err := tx.Exec(`INSERT INTO families
		(husband_id, wife_id, tile_id, active, fertile,
		 created_year, created_month, created_day, pregnancy)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		husbandID, wifeID, tileID, fertile,
		created.Year, created.Month, created.Day, Childless,
	)
	if err != nil {
		return Family{}, fmt.Errorf("insert family: %w", err)
	}
	fid, err := res.LastInsertId()
	if err != nil {
		return Family{}, fmt.Errorf("insert family id: %w", err)
	}

	if _, err := tx.Exec("UPDATE people SET family_id = ? WHERE id IN (?, ?)",
		fid, husbandID, wifeID); err != nil {
		return Family{}, fmt.Errorf("mark spouses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Family{}, err
	}

	return Family{
		ID:           FamilyID(fid),
		HusbandID:    husbandID,
		WifeID:       wifeID,
		TileID:       tileID,
		Active:       true,
		Fertile:      fertile,
		CreatedYear:  created.Year,
		CreatedMonth: created.Month,
		CreatedDay:   created.Day,
		Pregnancy:    Childless,
	}, nil
}

// GetFamily fetches one family by ID.
func (s *Store) GetFamily(id FamilyID) (Family, error) {
	var f Family
	err := s.conn.Get(&f, "SELECT * FROM families WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Family{}, ErrNotFound
	}
	if err != nil {
		return Family{}, fmt.Errorf("get family %d: %w", id, err)
	}
	return f, nil
}

// SetPregnant moves a childless active family to the pregnant state with
// the given due date. Returns false if the family was not childless and
// active (a concurrent transition won).
func (s *Store) SetPregnant(id FamilyID, due calendar.Date) (bool, error) {
	res, err := s.conn.Exec(`UPDATE families
		SET pregnancy = ?, due_year = ?, due_month = ?, due_day = ?
		WHERE id = ? AND active = 1 AND pregnancy = ?`,
		Pregnant, due.Year, due.Month, due.Day, id, Childless,
	)
	if err != nil {
		return false, fmt.Errorf("set pregnant %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetChildless clears a family's pregnancy after delivery. Returns false if
// the family was not pregnant.
func (s *Store) SetChildless(id FamilyID) (bool, error) {
	res, err := s.conn.Exec(`UPDATE families
		SET pregnancy = ?, due_year = NULL, due_month = NULL, due_day = NULL
		WHERE id = ? AND pregnancy = ?`,
		Childless, id, Pregnant,
	)
	if err != nil {
		return false, fmt.Errorf("set childless %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DueFamilies returns active pregnant families on the tile whose due date
// is on or before asOf.
func (s *Store) DueFamilies(tileID int, asOf calendar.Date) ([]Family, error) {
	var out []Family
	err := s.conn.Select(&out, `SELECT * FROM families
		WHERE tile_id = ? AND active = 1 AND pregnancy = ?
		  AND (due_year < ?
		       OR (due_year = ? AND (due_month < ?
		           OR (due_month = ? AND due_day <= ?))))`,
		tileID, Pregnant,
		asOf.Year, asOf.Year, asOf.Month, asOf.Month, asOf.Day,
	)
	if err != nil {
		return nil, fmt.Errorf("due families tile %d: %w", tileID, err)
	}
	return out, nil
}

// PendingDeliveries counts active pregnant families on a tile.
func (s *Store) PendingDeliveries(tileID int) (int, error) {
	var n int
	err := s.conn.Get(&n, `SELECT COUNT(*) FROM families
		WHERE tile_id = ? AND active = 1 AND pregnancy = ?`, tileID, Pregnant)
	if err != nil {
		return 0, fmt.Errorf("pending deliveries tile %d: %w", tileID, err)
	}
	return n, nil
}

// LivingCount returns the number of living people on a tile.
func (s *Store) LivingCount(tileID int) (int, error) {
	var n int
	err := s.conn.Get(&n, "SELECT COUNT(*) FROM people WHERE tile_id = ? AND alive = 1", tileID)
	if err != nil {
		return 0, fmt.Errorf("living count tile %d: %w", tileID, err)
	}
	return n, nil
}

// LivingByTile returns living population counts keyed by tile.
func (s *Store) LivingByTile() (map[int]int, error) {
	rows := []struct {
		TileID int `db:"tile_id"`
		N      int `db:"n"`
	}{}
	err := s.conn.Select(&rows,
		"SELECT tile_id, COUNT(*) AS n FROM people WHERE alive = 1 GROUP BY tile_id")
	if err != nil {
		return nil, fmt.Errorf("living by tile: %w", err)
	}
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		out[r.TileID] = r.N
	}
	return out, nil
}

// PeopleByTile returns all living people on a tile.
func (s *Store) PeopleByTile(tileID int) ([]Person, error) {
	var out []Person
	err := s.conn.Select(&out,
		"SELECT * FROM people WHERE tile_id = ? AND alive = 1", tileID)
	if err != nil {
		return nil, fmt.Errorf("people by tile %d: %w", tileID, err)
	}
	return out, nil
}

// OldestLiving returns up to n living people on the tile, oldest first.
func (s *Store) OldestLiving(tileID, n int) ([]Person, error) {
	var out []Person
	err := s.conn.Select(&out, `SELECT * FROM people
		WHERE tile_id = ? AND alive = 1
		ORDER BY birth_year ASC, birth_month ASC, birth_day ASC
		LIMIT ?`, tileID, n)
	if err != nil {
		return nil, fmt.Errorf("oldest living tile %d: %w", tileID, err)
	}
	return out, nil
}

// MarkDead flags the given people dead and dissolves their families: the
// family becomes inactive and the surviving spouse is widowed (unmarried
// again, so later eligible for pairing).
func (s *Store) MarkDead(ids []PersonID) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		var p Person
		if err := tx.Get(&p, "SELECT * FROM people WHERE id = ?", id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return fmt.Errorf("read person %d: %w", id, err)
		}

		if _, err := tx.Exec("UPDATE people SET alive = 0, family_id = NULL WHERE id = ?", id); err != nil {
			return fmt.Errorf("mark dead %d: %w", id, err)
		}

		if p.FamilyID != nil {
			if _, err := tx.Exec("UPDATE families SET active = 0 WHERE id = ?", *p.FamilyID); err != nil {
				return fmt.Errorf("deactivate family %d: %w", *p.FamilyID, err)
			}
			if _, err := tx.Exec("UPDATE people SET family_id = NULL WHERE family_id = ?", *p.FamilyID); err != nil {
				return fmt.Errorf("widow spouse of family %d: %w", *p.FamilyID, err)
			}
		}
	}

	return tx.Commit()
}

// Demographics summarizes the current living population.
func (s *Store) Demographics() (Demographics, error) {
	var d Demographics
	err := s.conn.Get(&d.Population, "SELECT COUNT(*) FROM people WHERE alive = 1")
	if err != nil {
		return d, fmt.Errorf("demographics: %w", err)
	}
	if err := s.conn.Get(&d.Males, "SELECT COUNT(*) FROM people WHERE alive = 1 AND male = 1"); err != nil {
		return d, fmt.Errorf("demographics: %w", err)
	}
	d.Females = d.Population - d.Males
	if err := s.conn.Get(&d.Married, "SELECT COUNT(*) FROM people WHERE alive = 1 AND family_id IS NOT NULL"); err != nil {
		return d, fmt.Errorf("demographics: %w", err)
	}
	if err := s.conn.Get(&d.Pregnant, "SELECT COUNT(*) FROM families WHERE active = 1 AND pregnancy = ?", Pregnant); err != nil {
		return d, fmt.Errorf("demographics: %w", err)
	}
	return d, nil
}

// InsertEvents appends demographic events to the log.
func (s *Store) InsertEvents(events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		if _, err := tx.Exec(
			"INSERT INTO events (event_type, year, month, day, person_id) VALUES (?, ?, ?, ?, ?)",
			e.Type, e.Year, e.Month, e.Day, e.PersonID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentEvents returns the most recent limit events, newest first.
func (s *Store) RecentEvents(limit int) ([]EventRow, error) {
	var out []EventRow
	err := s.conn.Select(&out, `SELECT event_type, year, month, day, person_id
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (s *Store) SaveMeta(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}
