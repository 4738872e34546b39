package google

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/util"
)

// Worksheet names and ranges. Row 1 of every worksheet is a header.
const (
	TasksSheet     = "Tasks"
	TemplatesSheet = "Templates"
	SuppliersSheet = "Suppliers"
	UsersSheet     = "Users"

	tasksRange     = TasksSheet + "!A2:J"
	templatesRange = TemplatesSheet + "!A2:G"
	suppliersRange = SuppliersSheet + "!A2:I"
	usersRange     = UsersSheet + "!A2:D"

	statusColumn = "F"
	keyColumn    = "J"
)

// Headers are written by EnsureHeaders when a worksheet is empty. The first
// seven task columns match the layout the bot has always used.
var Headers = map[string][]interface{}{
	TasksSheet:     {"Date", "Category", "Subcategory", "Task", "Deadline", "Status", "Repeat", "Owner", "Kind", "Key"},
	TemplatesSheet: {"Owner", "Category", "Subcategory", "Task", "Deadline", "Rule", "Active"},
	SuppliersSheet: {"Supplier", "Category", "Points", "Cadence", "Order deadline", "Lead days", "Shelf life days", "Interval days", "Active"},
	UsersSheet:     {"Name", "Telegram ID", "Categories", "Timezone"},
}

var rowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func cellInt(row []interface{}, i int) int {
	n, err := strconv.Atoi(cell(row, i))
	if err != nil {
		return 0
	}
	return n
}

// cellBool treats an empty cell as true so hand-written rows are active by default.
func cellBool(row []interface{}, i int) bool {
	switch strings.ToLower(cell(row, i)) {
	case "", "true", "yes", "1", "да", "✅":
		return true
	}
	return false
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// ParseStatus reads a status cell. Legacy sheets mark completion in Russian.
func ParseStatus(s string) model.Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "done", "выполнено", "✅", "x":
		return model.StatusDone
	}
	return model.StatusPending
}

// ParseOrigin reads the repeat column. Legacy rows carry "повтор" for tasks
// created from templates.
func ParseOrigin(s string) model.Origin {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", string(model.OriginManual):
		return model.OriginManual
	case "повтор", string(model.OriginRecurrence):
		return model.OriginRecurrence
	default:
		return model.Origin(v)
	}
}

// InstanceRow encodes an instance as a Tasks row.
func InstanceRow(inst model.Instance) []interface{} {
	return []interface{}{
		util.FormatDate(inst.Date),
		inst.Category,
		inst.Subcategory,
		inst.Description,
		inst.Deadline,
		string(inst.Status),
		string(inst.Origin),
		inst.Owner,
		string(inst.Kind),
		inst.Key,
	}
}

// RowInstance decodes a Tasks row. Rows without a key column get their key
// computed from the defining fields.
func RowInstance(row []interface{}) (model.Instance, error) {
	date, err := util.ParseDate(cell(row, 0))
	if err != nil {
		return model.Instance{}, fmt.Errorf("bad date %q: %w", cell(row, 0), err)
	}
	inst := model.Instance{
		Date:        date,
		Category:    cell(row, 1),
		Subcategory: cell(row, 2),
		Description: cell(row, 3),
		Status:      ParseStatus(cell(row, 5)),
		Origin:      ParseOrigin(cell(row, 6)),
		Owner:       cell(row, 7),
		Kind:        model.Kind(cell(row, 8)),
		Key:         cell(row, 9),
	}
	if inst.Description == "" {
		return model.Instance{}, fmt.Errorf("row has no task text")
	}
	if d := cell(row, 4); d != "" {
		clock, err := util.ParseClock(d)
		if err != nil {
			return model.Instance{}, fmt.Errorf("bad deadline %q: %w", d, err)
		}
		inst.Deadline = clock
	}
	if inst.Key == "" {
		inst = inst.WithKey()
	}
	return inst, nil
}

func TemplateRow(tpl model.Template) []interface{} {
	return []interface{}{tpl.Owner, tpl.Category, tpl.Subcategory, tpl.Description, tpl.Deadline, tpl.Rule, boolCell(tpl.Active)}
}

func RowTemplate(row []interface{}) model.Template {
	return model.Template{
		Owner:       cell(row, 0),
		Category:    cell(row, 1),
		Subcategory: cell(row, 2),
		Description: cell(row, 3),
		Deadline:    cell(row, 4),
		Rule:        cell(row, 5),
		Active:      cellBool(row, 6),
	}
}

func SupplierRow(p model.SupplierProfile) []interface{} {
	return []interface{}{
		p.Name,
		p.Category,
		strings.Join(p.DeliveryPoints, ", "),
		string(p.Kind),
		p.OrderDeadline,
		p.LeadDays,
		p.ShelfLifeDays,
		p.IntervalDays,
		boolCell(p.Active),
	}
}

func RowSupplier(row []interface{}) model.SupplierProfile {
	return model.SupplierProfile{
		Name:           cell(row, 0),
		Category:       cell(row, 1),
		DeliveryPoints: util.SplitList(cell(row, 2)),
		Kind:           model.CadenceKind(strings.ToLower(cell(row, 3))),
		OrderDeadline:  cell(row, 4),
		LeadDays:       cellInt(row, 5),
		ShelfLifeDays:  cellInt(row, 6),
		IntervalDays:   cellInt(row, 7),
		Active:         cellBool(row, 8),
	}
}

func UserRow(u model.User) []interface{} {
	return []interface{}{u.Name, u.ID, strings.Join(u.Categories, ", "), u.Timezone}
}

func RowUser(row []interface{}) model.User {
	return model.User{
		Name:       cell(row, 0),
		ID:         cell(row, 1),
		Categories: util.SplitList(cell(row, 2)),
		Timezone:   cell(row, 3),
	}
}

// UpdatedRow extracts the row number from an A1 range such as "Tasks!A15:J15".
func UpdatedRow(a1 string) (int, bool) {
	m := rowRe.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}
