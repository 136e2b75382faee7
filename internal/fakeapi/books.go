package fakeapi

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/validate"
	"github.com/go-chi/chi/v5"
)

// CartRow is a cart entry as GET /books/cart returns it.
type CartRow struct {
	model.Book
	QuantityCart int `json:"quantityCart"`
}

func bookID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) sortedBooksLocked() []model.Book {
	out := make([]model.Book, 0, len(s.books))
	for id := 1; id < s.nextBook; id++ {
		if b, ok := s.books[id]; ok {
			out = append(out, *b)
		}
	}
	return out
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := s.sortedBooksLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBookAdd(w http.ResponseWriter, r *http.Request) {
	var nb validate.NewBook
	if err := json.NewDecoder(r.Body).Decode(&nb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(nb); err != nil {
		writeJSON(w, http.StatusBadRequest, message{Message: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if strings.EqualFold(b.Name, nb.Name) {
			writeJSON(w, http.StatusConflict, message{Message: fmt.Sprintf("book %q already exists", nb.Name)})
			return
		}
	}
	id := s.addBookLocked(model.Book{
		Author:          nb.Author,
		Name:            nb.Name,
		Price:           nb.Price,
		Genre:           nb.Genre,
		Description:     nb.Description,
		DescriptionLong: nb.DescriptionLong,
		Quantity:        nb.Quantity,
		BorrowPrice:     nb.BorrowPrice,
	})
	writeJSON(w, http.StatusOK, s.books[id])
}

func (s *Server) handleBookDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	delete(s.books, id)
	for _, c := range s.cart {
		delete(c, id)
	}
	for uid, ids := range s.favs {
		s.favs[uid] = slices.DeleteFunc(ids, func(x int) bool { return x == id })
	}
	writeJSON(w, http.StatusOK, message{Message: "book deleted"})
}

// purchaseLocked charges the user for qty copies of the book.
func (s *Server) purchaseLocked(uid int, items []model.Purchase) error {
	acc := s.users[uid]
	var total float64
	for _, p := range items {
		b, ok := s.books[p.BookID]
		if !ok {
			return fmt.Errorf("book %d not found", p.BookID)
		}
		if p.Quantity < 1 {
			return fmt.Errorf("invalid quantity for book %d", p.BookID)
		}
		if b.Quantity < p.Quantity {
			return fmt.Errorf("only %d copies of %q left", b.Quantity, b.Name)
		}
		total += b.Price * float64(p.Quantity)
	}
	if total > acc.user.Balance {
		return fmt.Errorf("insufficient balance")
	}
	now := s.now().UTC()
	for _, p := range items {
		s.books[p.BookID].Quantity -= p.Quantity
		s.orders[uid] = append(s.orders[uid], orderEntry{bookID: p.BookID, qty: p.Quantity, at: now})
	}
	acc.user.Balance = math.Round((acc.user.Balance-total)*100) / 100
	return nil
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.purchaseLocked(uid, []model.Purchase{{BookID: id, Quantity: 1}}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "book purchased"})
}

type buyBooksRequest struct {
	Purchases []model.Purchase `json:"purchases"`
}

func (s *Server) handleBuyBatch(w http.ResponseWriter, r *http.Request) {
	var req buyBooksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.Purchases) == 0 {
		writeError(w, http.StatusBadRequest, "no books given")
		return
	}
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.purchaseLocked(uid, req.Purchases); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, p := range req.Purchases {
		delete(s.cart[uid], p.BookID)
	}
	writeJSON(w, http.StatusOK, message{Message: "books purchased"})
}

func (s *Server) handleOrdered(w http.ResponseWriter, r *http.Request) {
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OrderedBook, 0, len(s.orders[uid]))
	for _, o := range s.orders[uid] {
		b, ok := s.books[o.bookID]
		if !ok {
			continue
		}
		out = append(out, model.OrderedBook{Book: *b, OrderedQuantity: o.qty, OrderedAt: model.Timestamp{Time: o.at}})
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- borrowing ----

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	req := validate.Borrow{Days: 7}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		writeError(w, http.StatusBadRequest, "book not found")
		return
	}
	if _, dup := s.borrowed[uid][id]; dup {
		writeError(w, http.StatusBadRequest, "book already borrowed")
		return
	}
	if b.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "book not available")
		return
	}
	acc := s.users[uid]
	if acc.user.Balance < b.BorrowPrice {
		writeError(w, http.StatusBadRequest, "insufficient balance")
		return
	}
	acc.user.Balance = math.Round((acc.user.Balance-b.BorrowPrice)*100) / 100
	b.Quantity--
	if s.borrowed[uid] == nil {
		s.borrowed[uid] = make(map[int]time.Time)
	}
	s.borrowed[uid][id] = s.now().UTC().Add(time.Duration(req.Days) * 24 * time.Hour)
	writeJSON(w, http.StatusOK, "book borrowed")
}

func (s *Server) handleBorrowed(w http.ResponseWriter, r *http.Request) {
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Book{}
	for _, b := range s.sortedBooksLocked() {
		due, ok := s.borrowed[uid][b.ID]
		if !ok {
			continue
		}
		b.IsBorrowed = true
		b.DueAt = model.Timestamp{Time: due}
		out = append(out, b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGiveBack(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.borrowed[uid][id]; !ok {
		writeError(w, http.StatusBadRequest, "book not borrowed")
		return
	}
	delete(s.borrowed[uid], id)
	if b, ok := s.books[id]; ok {
		b.Quantity++
	}
	writeJSON(w, http.StatusOK, nil)
}

// ---- cart ----

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	uid := principalFrom(r.Context()).id
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []CartRow{}
	for _, b := range s.sortedBooksLocked() {
		e, ok := s.cart[uid][b.ID]
		if !ok || !now.Before(e.expires) {
			continue
		}
		b.ReservationExpiresAt = model.Timestamp{Time: e.expires.UTC()}
		out = append(out, CartRow{Book: b, QuantityCart: e.qty})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	uid := principalFrom(r.Context()).id
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if s.cart[uid] == nil {
		s.cart[uid] = make(map[int]*cartEntry)
	}
	e, ok := s.cart[uid][id]
	if !ok || !now.Before(e.expires) {
		e = &cartEntry{}
		s.cart[uid][id] = e
	}
	e.qty++
	e.expires = now.Add(s.reservationTTL)
	writeJSON(w, http.StatusOK, message{Message: "added to cart"})
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cart[uid], id)
	writeJSON(w, http.StatusOK, message{Message: "removed from cart"})
}

// ---- favorites ----

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Book{}
	for _, id := range s.favs[uid] {
		if b, ok := s.books[id]; ok {
			out = append(out, *b)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFavoriteAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if !slices.Contains(s.favs[uid], id) {
		s.favs[uid] = append(s.favs[uid], id)
	}
	writeJSON(w, http.StatusOK, message{Message: "added to favorites"})
}

func (s *Server) handleFavoriteDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	uid := principalFrom(r.Context()).id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favs[uid] = slices.DeleteFunc(s.favs[uid], func(x int) bool { return x == id })
	writeJSON(w, http.StatusOK, message{Message: "favorite deleted"})
}
