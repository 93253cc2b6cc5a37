// Package schema defines the tables of the current store and creates them.
// Reference tables are rebuilt from release files on every install; user
// tables are created once and never dropped.
package schema

import (
	"fmt"
	"strings"
)

// Table describes one table of the current store.
type Table struct {
	Name string
	// Columns is the column and constraint list of the CREATE statement.
	Columns string
	// Fields is the number of fields per record in the table's data file.
	// Zero means the table has no data file.
	Fields int
	// User tables are created only when absent and loaded additively.
	User bool
}

// CreateSQL returns the CREATE TABLE statement.
func (t Table) CreateSQL() string {
	if t.User {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, t.Columns)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", t.Name, t.Columns)
}

// InsertSQL returns the statement used to load the table's data file. Rows
// already present in a user table are kept.
func (t Table) InsertSQL() string {
	verb := "INSERT"
	if t.User {
		verb = "INSERT OR IGNORE"
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", t.Fields), ", ")
	return fmt.Sprintf("%s INTO %s VALUES (%s)", verb, t.Name, marks)
}

// Reference tables in import order.
var Reference = []Table{
	{Name: "fd_group", Fields: 2, Columns: `FdGrp_Cd TEXT PRIMARY KEY NOT NULL,
		FdGrp_Desc TEXT NOT NULL`},
	{Name: "food_des", Fields: 14, Columns: `NDB_No TEXT NOT NULL,
		FdGrp_Cd TEXT NOT NULL,
		Long_Desc TEXT NOT NULL,
		Shrt_Desc TEXT NOT NULL,
		ComName TEXT,
		ManufacName TEXT,
		Survey TEXT,
		Ref_desc TEXT,
		Refuse INTEGER,
		SciName TEXT,
		N_Factor REAL,
		Pro_Factor REAL,
		Fat_Factor REAL,
		CHO_Factor REAL,
		PRIMARY KEY (NDB_No, FdGrp_Cd)`},
	{Name: "nutr_def", Fields: 6, Columns: `Nutr_No TEXT PRIMARY KEY NOT NULL,
		Units TEXT NOT NULL,
		Tagname TEXT,
		NutrDesc TEXT NOT NULL,
		Num_Dec INTEGER NOT NULL,
		SR_Order INTEGER NOT NULL`},
	{Name: "nut_data", Fields: 18, Columns: `NDB_No TEXT NOT NULL,
		Nutr_No TEXT NOT NULL,
		Nutr_Val REAL NOT NULL,
		Num_Data_Pts REAL NOT NULL,
		Std_Error REAL,
		Src_Cd TEXT NOT NULL,
		Deriv_Cd TEXT,
		Ref_NDB_No TEXT,
		Add_Nutr_Mark TEXT,
		Num_Studies INTEGER,
		Min REAL,
		Max REAL,
		DF INTEGER,
		Low_EB REAL,
		Up_EB REAL,
		Stat_cmt TEXT,
		AddMod_Date TEXT,
		CC TEXT,
		PRIMARY KEY (NDB_No, Nutr_No)`},
	// One row per measurement description known for a food.
	{Name: "weight", Fields: 7, Columns: `NDB_No TEXT NOT NULL,
		Seq INTEGER NOT NULL,
		Amount REAL NOT NULL,
		Msre_Desc TEXT NOT NULL,
		Gm_wgt REAL NOT NULL,
		Num_Data_Pts INTEGER,
		Std_Dev REAL,
		PRIMARY KEY (NDB_No, Seq)`},
}

// User tables. Category is the only one with a data file.
var User = []Table{
	{Name: "recipe", User: true, Columns: `recipe_no INTEGER PRIMARY KEY AUTOINCREMENT,
		recipe_name TEXT NOT NULL,
		no_serv INTEGER NOT NULL,
		no_ingr INTEGER NOT NULL,
		category_no INTEGER NOT NULL`},
	{Name: "ingredient", User: true, Columns: `recipe_no INTEGER NOT NULL,
		amount REAL NOT NULL,
		Msre_Desc TEXT NOT NULL,
		NDB_No TEXT NOT NULL`},
	{Name: "category", User: true, Fields: 2, Columns: `category_no INTEGER PRIMARY KEY NOT NULL,
		category_desc TEXT NOT NULL`},
	{Name: "preparation", User: true, Columns: `recipe_no INTEGER PRIMARY KEY NOT NULL,
		prep_time TEXT,
		prep_desc TEXT`},
	{Name: "person", User: true, Columns: `person_no INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
		person_name TEXT,
		user_name TEXT`},
	{Name: "food_plan", User: true, Columns: `person_no INTEGER NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		amount REAL NOT NULL,
		Msre_Desc TEXT NOT NULL,
		NDB_No TEXT NOT NULL`},
	{Name: "recipe_plan", User: true, Columns: `person_no INTEGER NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		no_portions REAL NOT NULL,
		recipe_no INTEGER NOT NULL`},
	{Name: "nutr_goal", User: true, Columns: `person_no INTEGER NOT NULL,
		Nutr_No TEXT NOT NULL,
		goal_val REAL NOT NULL`},
}

// Lookup returns the table named name, ignoring case.
func Lookup(name string) (Table, bool) {
	for _, set := range [][]Table{Reference, User} {
		for _, t := range set {
			if strings.EqualFold(t.Name, name) {
				return t, true
			}
		}
	}
	return Table{}, false
}
