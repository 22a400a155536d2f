package ledger

import (
	"encoding/json"
	"net/http"

	"github.com/klokku/fintrack/internal/rest"
	"github.com/klokku/fintrack/pkg/category"
)

type CategoryDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type CategoryListDTO struct {
	Categories []CategoryDTO `json:"categories"`
	Palette    []string      `json:"palette"`
}

// ListCategories godoc
// @Summary List categories
// @Description Returns the categories with the color palette they are drawn from.
// @Tags Category
// @Produce json
// @Success 200 {object} CategoryListDTO
// @Router /api/categories [get]
// @Security XUserId
func (handler *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	categories := session.Categories()
	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryToDTO(c))
	}
	palette := make([]string, 0, len(category.Palette))
	for _, color := range category.Palette {
		palette = append(palette, string(color))
	}
	rest.WriteJSON(w, http.StatusOK, CategoryListDTO{Categories: dtos, Palette: palette})
}

// CreateCategory godoc
// @Summary Create a category
// @Tags Category
// @Accept json
// @Produce json
// @Param category body CategoryDTO true "Category"
// @Success 201 {object} MutationResultDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/categories [post]
// @Security XUserId
func (handler *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	var request CategoryDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{
		Kind:     KindCategoryAdd,
		Category: category.Category{Name: request.Name, Color: category.Color(request.Color)},
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ResultToDTO(result))
}

// DeleteCategory godoc
// @Summary Delete a category
// @Description Expenses keep their category name.
// @Tags Category
// @Produce json
// @Param id path int true "Category ID"
// @Success 200 {object} MutationResultDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/categories/{id} [delete]
// @Security XUserId
func (handler *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	session, ok := handler.session(w, r)
	if !ok {
		return
	}
	id, err := pathId(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid category id", err.Error())
		return
	}
	result, err := session.Submit(r.Context(), Mutation{Kind: KindCategoryDelete, Category: category.Category{ID: id}})
	if err != nil {
		writeFailure(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ResultToDTO(result))
}

func CategoryToDTO(c category.Category) CategoryDTO {
	return CategoryDTO{ID: c.ID, Name: c.Name, Color: string(c.Color)}
}
