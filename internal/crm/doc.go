// Package crm is the gateway to the MiniCRM REST API.
//
// The CRM data model is a hierarchy of contact -> business -> project ->
// todo. Nothing here is owned by this system: contacts, projects and todos
// are fetched per request, reshaped into the JSON the frontend consumes,
// and selectively written back (todo comment and deadline, project status).
//
// The only deliberate concurrency in the repository lives here: task lists
// are fetched with a bounded number of parallel requests per project set,
// and a failed fetch for one project never aborts the others.
package crm
