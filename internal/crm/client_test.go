package crm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return NewClient(Options{
		BaseURL:  ts.URL,
		SystemID: "123",
		APIKey:   "secret",
		Timeout:  2 * time.Second,
		Workers:  4,
		ScanCap:  100,
	})
}

func TestClientAuthentication(t *testing.T) {
	var gotUser, gotPass string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		fmt.Fprint(w, `{"Count":0,"Results":[]}`)
	}))

	_, err := client.ResolveContact(context.Background(), "jo@acme.hu")
	require.NoError(t, err)
	assert.Equal(t, "123", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestClientStatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := client.ResolveContact(context.Background(), "jo@acme.hu")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Contains(t, statusErr.Body, "rate limited")
}

func TestClientTimeout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	client.httpClient.Timeout = 20 * time.Millisecond

	_, err := client.ResolveContact(context.Background(), "jo@acme.hu")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestResolveContactNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Count":0,"Results":[]}`)
	}))

	result, err := client.ResolveContact(context.Background(), "nobody@acme.hu")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Nil(t, result.Contact)
}

func TestResolveContactMultipleBusinesses(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Contact", r.URL.Path)
		assert.Equal(t, "jo@acme.hu", r.URL.Query().Get("Email"))
		fmt.Fprint(w, `{"Count":2,"Results":{
			"1":{"Id":1,"Name":"Jo","Email":"jo@acme.hu","BusinessId":10},
			"2":{"Id":2,"Name":"Jo","Email":"jo@acme.hu","BusinessId":20}
		}}`)
	}))

	result, err := client.ResolveContact(context.Background(), "jo@acme.hu")
	require.NoError(t, err)

	assert.True(t, result.Found)
	require.NotNil(t, result.Contact)
	assert.Equal(t, int64(1), result.Contact.ID)
	assert.Equal(t, []int64{10, 20}, result.BusinessIDs)
}

func TestResolveContactDetailFetch(t *testing.T) {
	var detailURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/Contact", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Count":1,"Results":[{"Id":1,"Name":"Jo","BusinessId":10,"Url":%q}]}`, detailURL)
	})
	mux.HandleFunc("/Contact/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Id":1,"Name":"Jo Kovács","Email":"jo@acme.hu","Company":"Acme","Phone":"+361234"}`)
	})

	client := newTestClient(t, mux)
	detailURL = client.baseURL + "/Contact/1"

	result, err := client.ResolveContact(context.Background(), "jo@acme.hu")
	require.NoError(t, err)

	require.NotNil(t, result.Contact)
	assert.Equal(t, "Jo Kovács", result.Contact.Name)
	assert.Equal(t, "Acme", result.Contact.Company)
}

func TestDiscoverProjectsMergesBusinesses(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Project", r.URL.Path)
		switch r.URL.Query().Get("MainContactId") {
		case "10":
			fmt.Fprint(w, `{"Count":2,"Results":[{"Id":100,"Name":"A","CategoryId":7},{"Id":101,"Name":"B","CategoryId":7}]}`)
		case "20":
			// Project 101 appears under both businesses.
			fmt.Fprint(w, `{"Count":2,"Results":[{"Id":101,"Name":"B","CategoryId":7},{"Id":102,"Name":"C","CategoryId":7}]}`)
		default:
			http.NotFound(w, r)
		}
	}))

	projects, err := client.DiscoverProjects(context.Background(), []int64{10, 20}, 0)
	require.NoError(t, err)

	require.Len(t, projects, 3)
	assert.Equal(t, ID(100), projects[0].ID)
	assert.Equal(t, ID(101), projects[1].ID)
	assert.Equal(t, ID(102), projects[2].ID)
}

func TestDiscoverProjectsCategoryCrossCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Project", func(w http.ResponseWriter, r *http.Request) {
		// Search results without category information.
		fmt.Fprint(w, `{"Count":2,"Results":[{"Id":100,"Name":"A"},{"Id":101,"Name":"B"}]}`)
	})
	mux.HandleFunc("/Project/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Id":100,"Name":"A","CategoryId":41,"StatusId":5}`)
	})
	mux.HandleFunc("/Project/101", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Id":101,"Name":"B","CategoryId":9}`)
	})

	client := newTestClient(t, mux)

	projects, err := client.DiscoverProjects(context.Background(), []int64{10}, 41)
	require.NoError(t, err)

	require.Len(t, projects, 1)
	assert.Equal(t, ID(100), projects[0].ID)
	assert.Equal(t, ID(41), projects[0].CategoryID)
	assert.Equal(t, ID(5), projects[0].StatusID)
}

func TestFetchTasksSkipsFailingProject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ToDoList/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Open", r.URL.Query().Get("Status"))
		fmt.Fprint(w, `{"Count":1,"Results":[{"Id":11,"Comment":"first","Status":"Open"}]}`)
	})
	mux.HandleFunc("/ToDoList/2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/ToDoList/3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Count":1,"Results":[{"Id":33,"Comment":"third","Status":"Open"}]}`)
	})

	client := newTestClient(t, mux)
	projects := []Project{{ID: 1, Name: "P1"}, {ID: 2, Name: "P2"}, {ID: 3, Name: "P3"}}

	tasks := client.FetchTasks(context.Background(), projects, TaskOptions{})

	require.Len(t, tasks, 2)
	titles := []string{tasks[0].Title, tasks[1].Title}
	assert.ElementsMatch(t, []string{"first", "third"}, titles)
}

func TestFetchTasksFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ToDoList/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "All", r.URL.Query().Get("Status"))
		fmt.Fprint(w, `{"Count":3,"Results":[
			{"Id":1,"Comment":"mine","Status":"Open","UserId":7},
			{"Id":2,"Comment":"other","Status":"Open","UserId":8},
			{"Id":3,"Comment":"done","Status":"Closed","UserId":7}
		]}`)
	})

	client := newTestClient(t, mux)
	projects := []Project{{ID: 1, Name: "P1"}}

	tasks := client.FetchTasks(context.Background(), projects, TaskOptions{
		IncludeClosed: true,
		Assignee:      "7",
	})

	require.Len(t, tasks, 2)
	assert.ElementsMatch(t, []string{"mine", "done"}, []string{tasks[0].Title, tasks[1].Title})
}

func TestUpdateTodo(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, `{}`)
	}))

	comment := "updated"
	err := client.UpdateTodo(context.Background(), 42, TodoUpdate{Comment: &comment})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/ToDo/42", gotPath)
	assert.JSONEq(t, `{"Comment":"updated"}`, gotBody)
}

func TestUpdateTodoNoFields(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	err := client.UpdateTodo(context.Background(), 42, TodoUpdate{})
	assert.Error(t, err)
}

func TestUpdateProjectStatus(t *testing.T) {
	var gotPath, gotBody string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, `{}`)
	}))

	require.NoError(t, client.UpdateProjectStatus(context.Background(), 100, 7))
	assert.Equal(t, "/Project/100", gotPath)
	assert.JSONEq(t, `{"StatusId":7}`, gotBody)
}

func TestStatusIDs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Schema/Project/41", r.URL.Path)
		fmt.Fprint(w, `{"StatusId":{"1":"New","2":"In progress","3":"Lezárt"}}`)
	}))

	statuses, err := client.StatusIDs(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "New", 2: "In progress", 3: "Lezárt"}, statuses)
}
