package handlers

import "github.com/mark3labs/mcp-go/mcp"

const domainHelp = `Search domain as a list of [field, operator, value] triples, e.g. [["name", "ilike", "john"]]. ` +
	`Operators: =, !=, >, <, >=, <=, like, ilike, in, not in. An empty list matches every record.`

var intItems = map[string]interface{}{"type": "integer"}
var stringItems = map[string]interface{}{"type": "string"}

func searchRecordsTool() mcp.Tool {
	return mcp.NewTool("odoo_search_records",
		mcp.WithDescription(`Search any Odoo model with a domain filter and return the matching record IDs.

Works with customers (res.partner), sales orders (sale.order), products (product.product), invoices (account.move) and any other model.
Use odoo_read_records afterwards to fetch data, or odoo_search_read_records to do both in one call.

Examples:
- customers named John: model='res.partner', domain=[['name', 'ilike', 'john']]
- unpaid invoices: model='account.move', domain=[['state', '=', 'posted'], ['payment_state', '=', 'not_paid']]
- latest orders: model='sale.order', order='create_date desc', limit=5`),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name (e.g., 'res.partner', 'sale.order', 'product.product')")),
		mcp.WithArray("domain", mcp.Description(domainHelp)),
		mcp.WithNumber("limit", mcp.DefaultNumber(defaultLimit), mcp.Description("Maximum number of records to return (default 10, keep at or below 100)")),
		mcp.WithNumber("offset", mcp.DefaultNumber(defaultOffset), mcp.Description("Number of records to skip, for pagination")),
		mcp.WithString("order", mcp.Description("Sort order (e.g., 'name asc', 'create_date desc')")),
	)
}

func readRecordsTool() mcp.Tool {
	return mcp.NewTool("odoo_read_records",
		mcp.WithDescription(`Read field values for known record IDs, typically from a previous search.

Omit fields to get every field, but naming them keeps responses small. Common fields:
- res.partner: name, email, phone, street, city, country_id
- sale.order: name, partner_id, date_order, amount_total, state
- product.product: name, default_code, list_price, qty_available
- account.move: name, partner_id, invoice_date, amount_total, payment_state`),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name")),
		mcp.WithArray("ids", mcp.Required(), mcp.Items(intItems), mcp.Description("Record IDs to read")),
		mcp.WithArray("fields", mcp.Items(stringItems), mcp.Description("Field names to retrieve (omit for all fields)")),
	)
}

func searchReadRecordsTool() mcp.Tool {
	return mcp.NewTool("odoo_search_read_records",
		mcp.WithDescription(`Search and read in a single call, returning full records instead of IDs.

Prefer this over odoo_search_records followed by odoo_read_records.

Example: model='res.partner', domain=[['customer_rank', '>', 0]], fields=['name', 'email', 'phone'], limit=20`),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name")),
		mcp.WithArray("domain", mcp.Description(domainHelp)),
		mcp.WithArray("fields", mcp.Items(stringItems), mcp.Description("Field names to retrieve (omit for all fields)")),
		mcp.WithNumber("limit", mcp.DefaultNumber(defaultLimit), mcp.Description("Maximum number of records to return")),
		mcp.WithNumber("offset", mcp.DefaultNumber(defaultOffset), mcp.Description("Number of records to skip")),
		mcp.WithString("order", mcp.Description("Sort order (e.g., 'name asc')")),
	)
}

func createRecordTool() mcp.Tool {
	return mcp.NewTool("odoo_create_record",
		mcp.WithDescription(`Create a record in any Odoo model and return its ID.

Required fields depend on the model; call odoo_get_model_fields first.
Many2one fields take the related record ID (e.g. {'partner_id': 123}).
Many2many fields use command triples such as [[6, 0, [1, 2, 3]]].

Example: model='res.partner', values={'name': 'John Doe', 'email': 'john@example.com'}`),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values for the new record")),
	)
}

func updateRecordTool() mcp.Tool {
	return mcp.NewTool("odoo_update_record",
		mcp.WithDescription(`Write the same field values to one or more existing records.

Only the given fields change. Read the record first if you need its current values.

Example: model='product.product', ids=[5], values={'list_price': 129.99}`),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name")),
		mcp.WithArray("ids", mcp.Required(), mcp.Items(intItems), mcp.Description("Record IDs to update")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values to write")),
	)
}

func deleteRecordTool() mcp.Tool {
	return mcp.NewTool("odoo_delete_record",
		mcp.WithDescription(`Permanently delete records. This cannot be undone.

Some records refuse deletion (for example posted invoices). Many models support archiving
instead, by writing {'active': false}. Confirm with the user before deleting.`),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name")),
		mcp.WithArray("ids", mcp.Required(), mcp.Items(intItems), mcp.Description("Record IDs to delete")),
	)
}

func getModelFieldsTool() mcp.Tool {
	return mcp.NewTool("odoo_get_model_fields",
		mcp.WithDescription(`Describe the fields of an Odoo model: label (string), type and help text.

Types include char, text, integer, float, boolean, date, datetime, selection,
many2one (takes an ID), one2many and many2many. Check this before creating or updating records.`),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("model", mcp.Required(), mcp.Description("Odoo model name to inspect")),
	)
}
